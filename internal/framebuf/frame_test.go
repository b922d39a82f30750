package framebuf

import "testing"

func TestEncodeDecodeFrame(t *testing.T) {
	rows := EncodeRowValues([]Value{{Kind: KindInt, Int: 7}, {Kind: KindInt, Int: 1}})
	payload := EncodeFrame(Header{NRows: 1, SchemaTag: "order_key,line_number"}, rows)

	frame, err := DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if frame.Header.NRows != 1 {
		t.Errorf("NRows = %d, want 1", frame.Header.NRows)
	}
	if frame.Header.SchemaTag != "order_key,line_number" {
		t.Errorf("SchemaTag = %q", frame.Header.SchemaTag)
	}

	values, err := DecodeRows(frame.Rows, int(frame.Header.NRows), 2)
	if err != nil {
		t.Fatalf("DecodeRows() error = %v", err)
	}
	if len(values) != 1 || values[0][0].Int != 7 || values[0][1].Int != 1 {
		t.Errorf("unexpected decoded values: %+v", values)
	}
}

func TestCursorWalksStream(t *testing.T) {
	sizes := []int{4, 2, 3}
	var frames [][]byte
	for _, n := range sizes {
		rows := make([]byte, 0)
		for i := 0; i < n; i++ {
			rows = append(rows, EncodeRowValues([]Value{{Kind: KindInt, Int: int64(i)}})...)
		}
		frames = append(frames, EncodeFrame(Header{NRows: uint32(n), SchemaTag: "x"}, rows))
	}
	stream := EncodeStream(frames)

	cursor := NewCursor(stream)
	var total uint32
	var count int
	for {
		frame, ok, err := cursor.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if !ok {
			break
		}
		total += frame.Header.NRows
		count++
	}
	if count != 3 {
		t.Errorf("decoded %d frames, want 3", count)
	}
	if total != 9 {
		t.Errorf("total nrows = %d, want 9", total)
	}
}

func TestCursorRestartable(t *testing.T) {
	stream := EncodeStream([][]byte{EncodeFrame(Header{NRows: 1, SchemaTag: "a"}, nil)})

	c1 := NewCursor(stream)
	f1, ok, err := c1.Next()
	if err != nil || !ok {
		t.Fatalf("first cursor failed: ok=%v err=%v", ok, err)
	}

	c2 := NewCursor(stream)
	f2, ok, err := c2.Next()
	if err != nil || !ok {
		t.Fatalf("restarted cursor failed: ok=%v err=%v", ok, err)
	}
	if f1.Header.NRows != f2.Header.NRows {
		t.Errorf("restart produced different frame: %+v vs %+v", f1, f2)
	}
}

func TestCursorMalformedFrame(t *testing.T) {
	// length prefix claims more bytes than exist.
	stream := []byte{0xFF, 0x00, 0x00, 0x00}
	cursor := NewCursor(stream)
	_, _, err := cursor.Next()
	if err == nil {
		t.Fatal("expected error for overrunning length prefix")
	}
}
