package querylang

import (
	"fmt"

	pgquery "github.com/pganalyze/pg_query_go/v6"
)

// Describe renders the same human-readable "select ... from lineitem
// where ..." line run-query.cc prints once a query has been validated.
// It is purely diagnostic output; dispatch never inspects it.
func Describe(q Query, m Modifiers) (string, error) {
	var sql string
	switch q.Tag {
	case TagCountGreater:
		sql = fmt.Sprintf("select count(*) from lineitem where l_extendedprice > %v", q.ExtendedPrice)
	case TagSelectGreater:
		sql = fmt.Sprintf("select * from lineitem where l_extendedprice > %v", q.ExtendedPrice)
	case TagSelectEqual:
		sql = fmt.Sprintf("select * from lineitem where l_extendedprice = %v", q.ExtendedPrice)
	case TagSelectByKey:
		sql = fmt.Sprintf("select * from lineitem where l_orderkey = %d and l_linenumber = %d", q.OrderKey, q.LineNumber)
	case TagSelectRange:
		sql = fmt.Sprintf(
			"select * from lineitem where l_shipdate >= %d and l_shipdate < %d and l_discount > %v and l_discount < %v and l_quantity < %v",
			q.ShipDateLow, q.ShipDateHigh, q.DiscountLow, q.DiscountHigh, q.Quantity,
		)
	case TagSelectRegex:
		sql = fmt.Sprintf("select * from lineitem where l_comment ilike '%%%s%%'", q.CommentRegex)
	case TagSelectAll:
		sql = "select * from lineitem"
	case TagStructured:
		sql = fmt.Sprintf("select %s from lineitem", q.ProjectColNames)
	default:
		return "", fmt.Errorf("querylang: cannot describe query %q: %w", q.Tag, ErrUnknownQuery)
	}

	// ilike is a PostgreSQL extension pg_query_go parses fine; every
	// other diagnostic line above is plain SQL. Parsing here is a
	// sanity check on the formatting above, not user-facing validation
	// — a failure means this package has a bug, not that the CLI
	// arguments were bad.
	if _, err := pgquery.Parse(sql); err != nil {
		return "", fmt.Errorf("querylang: generated diagnostic is not valid SQL (%q): %w: %w", sql, ErrConfigInvalid, err)
	}

	return sql, nil
}
