package filters

import (
	"strings"
	"time"

	"github.com/nimeshabuddhika/woo-order-exporter/pkg/models"
)

type Predicate func(models.Order) bool

// Predicates builds the active predicates in their fixed order:
// city, status, date, amount. Predicates that would pass everything are omitted.
func Predicates(c Criteria, now time.Time) []Predicate {
	preds := make([]Predicate, 0, 4)
	if p := cityPredicate(c.City); p != nil {
		preds = append(preds, p)
	}
	if p := statusPredicate(c.Status); p != nil {
		preds = append(preds, p)
	}
	if w, ok := c.Window(now); ok {
		preds = append(preds, func(o models.Order) bool { return w.Contains(o.DateCreated.Time) })
	}
	if p := amountPredicate(c); p != nil {
		preds = append(preds, p)
	}
	return preds
}

// Apply returns a new slice holding the orders that pass every predicate. orders is never modified.
// now anchors preset windows, so callers pass the apply time rather than the fetch time.
func Apply(orders []models.Order, c Criteria, now time.Time) []models.Order {
	preds := Predicates(c, now)
	out := make([]models.Order, 0, len(orders))
next:
	for _, o := range orders {
		for _, p := range preds {
			if !p(o) {
				continue next
			}
		}
		out = append(out, o)
	}
	return out
}

func cityPredicate(city string) Predicate {
	needle := strings.ToLower(strings.TrimSpace(city))
	if needle == "" {
		return nil
	}
	return func(o models.Order) bool {
		return strings.Contains(strings.ToLower(o.Billing.City), needle)
	}
}

func statusPredicate(status string) Predicate {
	if status == "" {
		return nil
	}
	return func(o models.Order) bool { return o.Status == status }
}

// amountPredicate excludes orders whose own total cannot be parsed once a comparison is active.
func amountPredicate(c Criteria) Predicate {
	if c.AmountValue == nil {
		return nil
	}
	v := *c.AmountValue
	switch c.AmountMode {
	case AmountEquals:
		return func(o models.Order) bool {
			total, ok := o.Amount()
			return ok && total.Sub(v).Abs().LessThan(AmountTolerance)
		}
	case AmountGreater:
		return func(o models.Order) bool {
			total, ok := o.Amount()
			return ok && total.GreaterThan(v)
		}
	case AmountLess:
		return func(o models.Order) bool {
			total, ok := o.Amount()
			return ok && total.LessThan(v)
		}
	default:
		return nil
	}
}
