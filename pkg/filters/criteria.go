// Package filters narrows an order aggregate with independent, conjunctive predicates.
package filters

import (
	"strconv"
	"strings"
	"time"

	"github.com/nimeshabuddhika/woo-order-exporter/pkg"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/models"
	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

type DateMode string

const (
	DateModePreset DateMode = "preset"
	DateModeCustom DateMode = "custom"
)

type AmountMode string

const (
	AmountAll     AmountMode = "all"
	AmountEquals  AmountMode = "equals"
	AmountGreater AmountMode = "greater"
	AmountLess    AmountMode = "less"
)

// AmountTolerance is the absolute difference under which "equals" matches.
var AmountTolerance = decimal.New(1, -2)

// Criteria is the full set of user-selected predicates. The zero value passes every order.
type Criteria struct {
	DateMode  DateMode
	MonthsAgo int        // preset: 0 means no lower bound
	Start     *time.Time // custom: only the calendar date is used
	End       *time.Time // custom: inclusive through end of day

	Status string // exact match, empty passes all

	AmountMode  AmountMode
	AmountValue *decimal.Decimal // nil passes all

	City string // case-insensitive substring, empty passes all
}

// DateWindow is an inclusive time range; a nil side is unbounded.
type DateWindow struct {
	From *time.Time
	To   *time.Time
}

func (w DateWindow) Contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && t.After(*w.To) {
		return false
	}
	return true
}

// Window resolves the date portion against now. ok is false when no date restriction applies,
// including a custom range with a missing bound.
func (c Criteria) Window(now time.Time) (DateWindow, bool) {
	switch c.DateMode {
	case DateModeCustom:
		if c.Start == nil || c.End == nil {
			return DateWindow{}, false
		}
		from := startOfDay(*c.Start)
		to := startOfDay(*c.End).AddDate(0, 0, 1).Add(-time.Millisecond)
		return DateWindow{From: &from, To: &to}, true
	default:
		if c.MonthsAgo <= 0 {
			return DateWindow{}, false
		}
		from := storeClock(now).AddDate(0, -c.MonthsAgo, 0)
		return DateWindow{From: &from}, true
	}
}

// FetchBounds returns the server-side after/before query bounds. Unlike Window, an incomplete
// custom range is a configuration error here, since no request may be issued with it.
// before is exclusive on the server, so the custom end date maps to the start of the next day.
func (c Criteria) FetchBounds(now time.Time) (after, before *time.Time, err error) {
	switch c.DateMode {
	case DateModeCustom:
		if c.Start == nil || c.End == nil {
			return nil, nil, pkg.ErrIncompleteDateRange
		}
		from := startOfDay(*c.Start)
		until := startOfDay(*c.End).AddDate(0, 0, 1)
		return &from, &until, nil
	default:
		if c.MonthsAgo <= 0 {
			return nil, nil, nil
		}
		from := storeClock(now).AddDate(0, -c.MonthsAgo, 0)
		return &from, nil, nil
	}
}

// storeClock re-reads now's wall clock as UTC, the frame order timestamps are parsed into.
func storeClock(now time.Time) time.Time {
	y, m, d := now.Date()
	hh, mm, ss := now.Clock()
	return time.Date(y, m, d, hh, mm, ss, now.Nanosecond(), time.UTC)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Raw carries unvalidated filter inputs as typed by a user or sent as query params.
type Raw struct {
	DateMode    string `form:"dateMode" json:"dateMode"`
	MonthsAgo   string `form:"monthsAgo" json:"monthsAgo"`
	StartDate   string `form:"startDate" json:"startDate"`
	EndDate     string `form:"endDate" json:"endDate"`
	Status      string `form:"status" json:"status"`
	AmountMode  string `form:"amountMode" json:"amountMode"`
	AmountValue string `form:"amountValue" json:"amountValue"`
	City        string `form:"city" json:"city"`
}

// Parse never fails: malformed values degrade to "pass all" for their predicate.
func (r Raw) Parse() Criteria {
	c := Criteria{
		DateMode:   DateModePreset,
		Status:     strings.TrimSpace(r.Status),
		AmountMode: AmountAll,
		City:       strings.TrimSpace(r.City),
	}

	if DateMode(strings.ToLower(strings.TrimSpace(r.DateMode))) == DateModeCustom {
		c.DateMode = DateModeCustom
		c.Start = parseDate(r.StartDate)
		c.End = parseDate(r.EndDate)
	} else if n, err := strconv.Atoi(strings.TrimSpace(r.MonthsAgo)); err == nil && n > 0 {
		c.MonthsAgo = n
	}

	switch mode := AmountMode(strings.ToLower(strings.TrimSpace(r.AmountMode))); mode {
	case AmountEquals, AmountGreater, AmountLess:
		c.AmountMode = mode
	}
	if v, err := decimal.NewFromString(strings.TrimSpace(r.AmountValue)); err == nil {
		c.AmountValue = &v
	}
	return c
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if t, err := time.ParseInLocation(DateLayout, s, time.UTC); err == nil {
		return &t
	}
	if t, err := models.ParseTimestamp(s); err == nil && !t.IsZero() {
		return &t
	}
	return nil
}
