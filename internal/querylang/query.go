// Package querylang defines the closed set of query shapes the client
// can issue and the execution modifiers that are orthogonal to the
// query itself.
package querylang

import "github.com/uccross/skyhookdb-ceph/internal/tableschema"

// Tag names one of the eight query shapes. The string is only the CLI
// surface; dispatch on Tag is a closed switch, never a free-form string
// comparison, anywhere past validation.
type Tag string

const (
	TagCountGreater  Tag = "a"
	TagSelectGreater Tag = "b"
	TagSelectEqual   Tag = "c"
	TagSelectByKey   Tag = "d"
	TagSelectRange   Tag = "e"
	TagSelectRegex   Tag = "f"
	TagSelectAll     Tag = "fastpath"
	TagStructured    Tag = "flatbuf"
)

// Sentinel values marking "not provided" for optional numeric query
// parameters, matching the CLI defaults in spec.md §6.
const (
	SentinelInt   int32   = -9999
	SentinelFloat float64 = -9999.0
)

// DefaultProjectColNames is the "no projection requested" marker for
// --project-col-names.
const DefaultProjectColNames = "*"

// Query is the tagged value describing what to run. Every field not
// relevant to Tag is left at its zero/sentinel value; Validate checks
// that the fields Tag requires are actually set.
type Query struct {
	Tag Tag

	ExtendedPrice float64

	OrderKey   int32
	LineNumber int32

	ShipDateLow  int32
	ShipDateHigh int32
	DiscountLow  float64
	DiscountHigh float64
	Quantity     float64

	CommentRegex string

	// Structured-only fields. TableSchemaStr/QuerySchemaStr are always
	// populated by ResolveStructured before dispatch; Fastpath is only
	// ever set by that same resolution step (open question ii).
	TableSchemaStr  string
	QuerySchemaStr  string
	ProjectColNames string
	Fastpath        bool
}

// Modifiers are execution flags orthogonal to the query shape.
type Modifiers struct {
	UseServerSide bool
	UseIndex      bool
	Projection    bool
	ExtraRowCost  uint64
}

// ResolveStructured fills in TableSchemaStr, QuerySchemaStr, and
// Fastpath for a Tag == TagStructured query, given the table's current
// schema. It is the Go rendering of the "flatbuf" branch of
// run-query.cc's argument-validation block: when no projection is
// requested the query schema is the table schema verbatim and the
// query counts as fastpath; otherwise the query schema is the declared
// projection, in the order named by ProjectColNames.
func (q *Query) ResolveStructured(tableSchema tableschema.Schema, hasPredicates bool) (forceProjection bool, err error) {
	if q.ProjectColNames == "" {
		q.ProjectColNames = DefaultProjectColNames
	}

	var querySchema tableschema.Schema
	if q.ProjectColNames == DefaultProjectColNames {
		querySchema = tableSchema
		if !hasPredicates {
			q.Fastpath = true
		}
	} else {
		sub, projErr := tableschema.Project(tableSchema, q.ProjectColNames)
		if projErr != nil {
			return false, projErr
		}
		querySchema = sub
		forceProjection = true
	}

	q.TableSchemaStr = tableschema.Serialize(tableSchema)
	q.QuerySchemaStr = tableschema.Serialize(querySchema)
	return forceProjection, nil
}
