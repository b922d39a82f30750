package storage

import "context"

// Await bridges one callback-style submission to a synchronous call,
// for the few call sites — build-index fan-out, the test_par debug
// hook — that have no use for overlapping in-flight requests of their
// own and would rather block. It is not used anywhere on the
// dispatcher's hot path: that path stays fully asynchronous.
func Await(ctx context.Context, submit func(Completion)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := make(chan struct{})
	var data []byte
	var err error

	submit(func(d []byte, e error) {
		data, err = d, e
		close(done)
	})

	select {
	case <-done:
		return data, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Exec is the synchronous wrapper around Client.AioExec used by the
// build-index fan-out and by TestPar.
func Exec(ctx context.Context, client Client, oid, method string, in []byte) ([]byte, error) {
	return Await(ctx, func(c Completion) { client.AioExec(oid, method, in, c) })
}

// TestPar loops calling the "test_par" remote method against oid
// iters times, the Go rendering of run-query.cc's worker_test_par: a
// latent debugging hook for measuring raw storage-side concurrency,
// never invoked from the main query path. read selects whether each
// call exercises a read-only or a read+write path on the server side.
func TestPar(ctx context.Context, client Client, oid string, iters int, read bool) error {
	in := []byte{0}
	if read {
		in[0] = 1
	}
	for i := 0; i < iters; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := Exec(ctx, client, oid, MethodTestPar, in); err != nil {
			return err
		}
	}
	return nil
}
