package querylang

import (
	"errors"
	"testing"

	"github.com/uccross/skyhookdb-ceph/internal/tableschema"
)

func TestValidateCountGreater(t *testing.T) {
	if err := Validate(Query{Tag: TagCountGreater, ExtendedPrice: 75.0}, Modifiers{}); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := Validate(Query{Tag: TagCountGreater}, Modifiers{}); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("missing extended-price: error = %v, want ErrConfigInvalid", err)
	}
	if err := Validate(Query{Tag: TagCountGreater, ExtendedPrice: 1}, Modifiers{UseIndex: true}); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("use-index forbidden: error = %v, want ErrConfigInvalid", err)
	}
}

func TestValidateSelectByKey(t *testing.T) {
	ok := Query{Tag: TagSelectByKey, OrderKey: 7, LineNumber: 1}
	if err := Validate(ok, Modifiers{}); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := Validate(Query{Tag: TagSelectByKey, LineNumber: 1}, Modifiers{}); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("missing order-key: error = %v, want ErrConfigInvalid", err)
	}
	if err := Validate(ok, Modifiers{UseIndex: true, UseServerSide: false}); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("use-index without use-cls: error = %v, want ErrConfigInvalid", err)
	}
	if err := Validate(ok, Modifiers{UseIndex: true, UseServerSide: true}); err != nil {
		t.Errorf("use-index with use-cls should be valid, got %v", err)
	}
}

func TestValidateSelectRange(t *testing.T) {
	ok := Query{
		Tag:          TagSelectRange,
		ShipDateLow:  100,
		ShipDateHigh: 200,
		DiscountLow:  0.05,
		DiscountHigh: 0.08,
		Quantity:     30,
	}
	if err := Validate(ok, Modifiers{}); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	missing := ok
	missing.ShipDateLow = SentinelInt
	if err := Validate(missing, Modifiers{}); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("missing ship-date-low: error = %v, want ErrConfigInvalid", err)
	}
}

func TestValidateSelectAllForbidsProjectionAndIndex(t *testing.T) {
	if err := Validate(Query{Tag: TagSelectAll}, Modifiers{Projection: true}); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("projection forbidden: error = %v, want ErrConfigInvalid", err)
	}
	if err := Validate(Query{Tag: TagSelectAll}, Modifiers{UseIndex: true}); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("use-index forbidden: error = %v, want ErrConfigInvalid", err)
	}
	if err := Validate(Query{Tag: TagSelectAll}, Modifiers{}); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidateUnknownQuery(t *testing.T) {
	if err := Validate(Query{Tag: "bogus"}, Modifiers{}); !errors.Is(err, ErrUnknownQuery) {
		t.Errorf("Validate() error = %v, want ErrUnknownQuery", err)
	}
}

func TestResolveStructuredFastpath(t *testing.T) {
	q := Query{Tag: TagStructured}
	forceProjection, err := q.ResolveStructured(tableschema.LineitemSchema, false)
	if err != nil {
		t.Fatalf("ResolveStructured() error = %v", err)
	}
	if forceProjection {
		t.Error("default project-col-names should not force projection")
	}
	if !q.Fastpath {
		t.Error("default project-col-names with no predicates should set Fastpath")
	}
}

func TestResolveStructuredProjection(t *testing.T) {
	q := Query{Tag: TagStructured, ProjectColNames: "line_number,order_key"}
	forceProjection, err := q.ResolveStructured(tableschema.LineitemSchema, false)
	if err != nil {
		t.Fatalf("ResolveStructured() error = %v", err)
	}
	if !forceProjection {
		t.Error("explicit projection should force projection")
	}
	if q.Fastpath {
		t.Error("explicit projection must not set Fastpath")
	}
	sub, err := tableschema.Parse(q.QuerySchemaStr)
	if err != nil {
		t.Fatalf("Parse(QuerySchemaStr) error = %v", err)
	}
	if sub.Names()[0] != "line_number" || sub.Names()[1] != "order_key" {
		t.Errorf("QuerySchemaStr columns = %v, want [line_number order_key]", sub.Names())
	}
}
