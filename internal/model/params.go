package model

import (
	"errors"
	"fmt"
	"time"
)

// CalendarParams selects a range of trading days. Nil bounds are open.
type CalendarParams struct {
	Start *time.Time
	End   *time.Time
}

// Validate checks the range against now.
func (p CalendarParams) Validate(now time.Time) error {
	return checkRange(p.Start, p.End, now)
}

// BarsParams selects bars of one symbol.
type BarsParams struct {
	Symbol    string
	Timeframe Timeframe
	Start     time.Time

	// End defaults to now when nil.
	End *time.Time

	// Limit caps the number of bars when positive.
	Limit int
}

// Validate checks the parameters against now.
func (p BarsParams) Validate(now time.Time) error {
	if p.Symbol == "" {
		return errors.New("symbol is required")
	}
	if err := p.Timeframe.Validate(); err != nil {
		return err
	}
	if p.Start.IsZero() {
		return errors.New("start is required")
	}
	if p.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", p.Limit)
	}
	return checkRange(&p.Start, p.End, now)
}

func checkRange(start, end *time.Time, now time.Time) error {
	if start != nil && start.After(now) {
		return fmt.Errorf("start %s is in the future", start.Format(time.RFC3339))
	}
	if end != nil && end.After(now) {
		return fmt.Errorf("end %s is in the future", end.Format(time.RFC3339))
	}
	if start != nil && end != nil && !end.After(*start) {
		return fmt.Errorf("end %s must be after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}
