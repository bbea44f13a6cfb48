package model

import (
	"fmt"
	"slices"
	"strconv"
	"time"
)

// TimeframeUnit is the base unit of a Timeframe.
type TimeframeUnit string

const (
	Minute TimeframeUnit = "Min"
	Hour   TimeframeUnit = "Hour"
	Day    TimeframeUnit = "Day"
	Week   TimeframeUnit = "Week"
	Month  TimeframeUnit = "Month"
)

// Timeframe is the interval covered by one bar.
type Timeframe struct {
	Amount int
	Unit   TimeframeUnit
}

// Common timeframes.
var (
	Tf1M  = Timeframe{1, Month}
	Tf1W  = Timeframe{1, Week}
	Tf1D  = Timeframe{1, Day}
	Tf4h  = Timeframe{4, Hour}
	Tf2h  = Timeframe{2, Hour}
	Tf1h  = Timeframe{1, Hour}
	Tf30m = Timeframe{30, Minute}
	Tf15m = Timeframe{15, Minute}
	Tf5m  = Timeframe{5, Minute}
	Tf1m  = Timeframe{1, Minute}
)

// NewTimeframe returns a validated timeframe.
func NewTimeframe(amount int, unit TimeframeUnit) (Timeframe, error) {
	tf := Timeframe{Amount: amount, Unit: unit}
	if err := tf.Validate(); err != nil {
		return Timeframe{}, err
	}
	return tf, nil
}

// Validate checks that the amount is allowed for the unit.
func (tf Timeframe) Validate() error {
	if tf.Amount <= 0 {
		return fmt.Errorf("timeframe amount must be positive, got %d", tf.Amount)
	}
	switch tf.Unit {
	case Minute:
		if tf.Amount > 59 {
			return fmt.Errorf("minute timeframes allow amounts 1-59, got %d", tf.Amount)
		}
	case Hour:
		if tf.Amount > 23 {
			return fmt.Errorf("hour timeframes allow amounts 1-23, got %d", tf.Amount)
		}
	case Day, Week:
		if tf.Amount != 1 {
			return fmt.Errorf("%s timeframes allow amount 1, got %d", tf.Unit, tf.Amount)
		}
	case Month:
		if !slices.Contains([]int{1, 2, 3, 6, 12}, tf.Amount) {
			return fmt.Errorf("month timeframes allow amounts 1, 2, 3, 6 and 12, got %d", tf.Amount)
		}
	default:
		return fmt.Errorf("unknown timeframe unit %q", tf.Unit)
	}
	return nil
}

var unitNames = map[TimeframeUnit]string{
	Minute: "m",
	Hour:   "h",
	Day:    "d",
	Week:   "w",
	Month:  "M",
}

// Name is the short label stored with bars, e.g. "15m" or "1M".
func (tf Timeframe) Name() string {
	return strconv.Itoa(tf.Amount) + unitNames[tf.Unit]
}

// String is the provider form, e.g. "15Min" or "1Month".
func (tf Timeframe) String() string {
	return strconv.Itoa(tf.Amount) + string(tf.Unit)
}

// Duration is the nominal length of one bar. Months count as 30 days.
func (tf Timeframe) Duration() time.Duration {
	n := time.Duration(tf.Amount)
	switch tf.Unit {
	case Minute:
		return n * time.Minute
	case Hour:
		return n * time.Hour
	case Day:
		return n * 24 * time.Hour
	case Week:
		return n * 7 * 24 * time.Hour
	case Month:
		return n * 30 * 24 * time.Hour
	}
	return 0
}

// ParseTimeframe parses a short name such as "5m", "4h", "1d", "1w" or "3M".
func ParseTimeframe(s string) (Timeframe, error) {
	if len(s) < 2 {
		return Timeframe{}, fmt.Errorf("invalid timeframe %q", s)
	}
	suffix := s[len(s)-1:]
	amount, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return Timeframe{}, fmt.Errorf("invalid timeframe %q", s)
	}
	for unit, name := range unitNames {
		if name == suffix {
			return NewTimeframe(amount, unit)
		}
	}
	return Timeframe{}, fmt.Errorf("invalid timeframe unit in %q", s)
}

// UnmarshalText allows timeframes in YAML configuration.
func (tf *Timeframe) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeframe(string(b))
	if err != nil {
		return err
	}
	*tf = parsed
	return nil
}
