package querylang

import (
	"errors"
	"fmt"
)

// ErrConfigInvalid covers every violation of the argument-validity
// table in spec.md §6: bad flags, missing required query parameters,
// or a modifier forbidden for the chosen query.
var ErrConfigInvalid = errors.New("querylang: invalid configuration")

// ErrUnknownQuery is returned for a --query value outside the closed
// tag set.
var ErrUnknownQuery = errors.New("querylang: unknown query")

// Validate checks q and m against the argument-validity table. It does
// no I/O and must be called, and must pass, before any dispatch begins.
func Validate(q Query, m Modifiers) error {
	switch q.Tag {
	case TagCountGreater, TagSelectGreater, TagSelectEqual:
		if m.UseIndex {
			return fmt.Errorf("querylang: query %q does not support --use-index: %w", q.Tag, ErrConfigInvalid)
		}
		if q.ExtendedPrice == 0 {
			return fmt.Errorf("querylang: query %q requires --extended-price != 0: %w", q.Tag, ErrConfigInvalid)
		}

	case TagSelectByKey:
		if q.OrderKey == 0 {
			return fmt.Errorf("querylang: query %q requires --order-key != 0: %w", q.Tag, ErrConfigInvalid)
		}
		if q.LineNumber == 0 {
			return fmt.Errorf("querylang: query %q requires --line-number != 0: %w", q.Tag, ErrConfigInvalid)
		}
		if m.UseIndex && !m.UseServerSide {
			return fmt.Errorf("querylang: --use-index requires --use-cls: %w", ErrConfigInvalid)
		}

	case TagSelectRange:
		if m.UseIndex {
			return fmt.Errorf("querylang: query %q does not support --use-index: %w", q.Tag, ErrConfigInvalid)
		}
		if q.ShipDateLow == SentinelInt {
			return fmt.Errorf("querylang: query %q requires --ship-date-low: %w", q.Tag, ErrConfigInvalid)
		}
		if q.ShipDateHigh == SentinelInt {
			return fmt.Errorf("querylang: query %q requires --ship-date-high: %w", q.Tag, ErrConfigInvalid)
		}
		if q.DiscountLow == SentinelFloat {
			return fmt.Errorf("querylang: query %q requires --discount-low: %w", q.Tag, ErrConfigInvalid)
		}
		if q.DiscountHigh == SentinelFloat {
			return fmt.Errorf("querylang: query %q requires --discount-high: %w", q.Tag, ErrConfigInvalid)
		}
		if q.Quantity == 0 {
			return fmt.Errorf("querylang: query %q requires --quantity != 0: %w", q.Tag, ErrConfigInvalid)
		}

	case TagSelectRegex:
		if m.UseIndex {
			return fmt.Errorf("querylang: query %q does not support --use-index: %w", q.Tag, ErrConfigInvalid)
		}
		if q.CommentRegex == "" {
			return fmt.Errorf("querylang: query %q requires --comment_regex: %w", q.Tag, ErrConfigInvalid)
		}

	case TagSelectAll:
		if m.UseIndex {
			return fmt.Errorf("querylang: query %q does not support --use-index: %w", q.Tag, ErrConfigInvalid)
		}
		if m.Projection {
			return fmt.Errorf("querylang: query %q does not support --projection: %w", q.Tag, ErrConfigInvalid)
		}

	case TagStructured:
		if q.TableSchemaStr == "" || q.QuerySchemaStr == "" {
			return fmt.Errorf("querylang: query %q requires resolved schemas: %w", q.Tag, ErrConfigInvalid)
		}

	default:
		return fmt.Errorf("querylang: invalid query %q: %w", q.Tag, ErrUnknownQuery)
	}

	return nil
}
