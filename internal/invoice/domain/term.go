package domain

import "time"

// Term is the length of one subscription period.
type Term struct {
	Years  int
	Months int
	Days   int
}

// DefaultTerm is one year.
var DefaultTerm = Term{Years: 1}

func (t Term) IsZero() bool {
	return t.Years == 0 && t.Months == 0 && t.Days == 0
}

func (t Term) AddTo(start time.Time) time.Time {
	if t.IsZero() {
		t = DefaultTerm
	}
	return start.AddDate(t.Years, t.Months, t.Days)
}

// TermSource supplies the current subscription term.
type TermSource interface {
	SubscriptionTerm() Term
}
