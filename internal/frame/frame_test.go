package frame

import (
	"slices"
	"testing"
)

func TestNew(t *testing.T) {
	if _, err := New("a", "b", "a"); err == nil {
		t.Error("New() with duplicate column: error = nil, want error")
	}
	f, err := New("a", "b")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := f.Columns(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Columns() = %v, want [a b]", got)
	}
	if f.Len() != 0 {
		t.Errorf("Len() = %d, want 0", f.Len())
	}
}

func TestAppend(t *testing.T) {
	f := MustNew("sym", "px")
	if err := f.Append("AAPL"); err == nil {
		t.Error("Append() with too few values: error = nil, want error")
	}

	row := []any{"AAPL", 1.5}
	f.MustAppend(row...)
	row[0] = "MSFT"

	v, ok := f.Value(0, "sym")
	if !ok || v != "AAPL" {
		t.Errorf("Value(0, sym) = %v, %v; want AAPL, true", v, ok)
	}
	if _, ok := f.Value(0, "missing"); ok {
		t.Error("Value(0, missing) ok = true, want false")
	}
}

func TestFromRecords(t *testing.T) {
	f, err := FromRecords([]string{"sym", "px"}, []map[string]any{
		{"sym": "AAPL", "px": 1.0},
		{"sym": "MSFT", "extra": true},
	})
	if err != nil {
		t.Fatalf("FromRecords() error = %v", err)
	}
	if f.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", f.Len())
	}
	if v, _ := f.Value(1, "px"); v != nil {
		t.Errorf("Value(1, px) = %v, want nil for missing key", v)
	}
	if f.Has("extra") {
		t.Error("Has(extra) = true, want false")
	}
	if rec := f.Record(0); rec["sym"] != "AAPL" || rec["px"] != 1.0 {
		t.Errorf("Record(0) = %v, want sym AAPL px 1", rec)
	}
}

func TestWithColumn(t *testing.T) {
	f := MustNew("sym").MustAppend("AAPL").MustAppend("MSFT")

	g := f.WithColumn("broker", "Alpaca")
	if f.Has("broker") {
		t.Error("WithColumn mutated the receiver")
	}
	for i := 0; i < g.Len(); i++ {
		if v, _ := g.Value(i, "broker"); v != "Alpaca" {
			t.Errorf("row %d broker = %v, want Alpaca", i, v)
		}
	}

	h := g.WithColumn("sym", "SPY")
	if got := h.Columns(); !slices.Equal(got, []string{"sym", "broker"}) {
		t.Errorf("Columns() = %v, want [sym broker]", got)
	}
	if v, _ := h.Value(1, "sym"); v != "SPY" {
		t.Errorf("sym = %v, want overwritten SPY", v)
	}
	if v, _ := g.Value(1, "sym"); v != "MSFT" {
		t.Errorf("original sym = %v, want MSFT", v)
	}
}

func TestHead(t *testing.T) {
	f := MustNew("n")
	for i := 0; i < 5; i++ {
		f.MustAppend(i)
	}

	tests := []struct {
		n    int
		want int
	}{
		{3, 3},
		{10, 5},
		{0, 0},
		{-1, 0},
	}
	for _, tt := range tests {
		if got := f.Head(tt.n).Len(); got != tt.want {
			t.Errorf("Head(%d).Len() = %d, want %d", tt.n, got, tt.want)
		}
	}
	if f.Len() != 5 {
		t.Errorf("Len() = %d after Head, want 5", f.Len())
	}
}

func TestConcat(t *testing.T) {
	a := MustNew("sym", "px").MustAppend("AAPL", 1.0)
	b := MustNew("sym", "px").MustAppend("MSFT", 2.0)

	if err := a.Concat(b); err != nil {
		t.Fatalf("Concat() error = %v", err)
	}
	if a.Len() != 2 {
		t.Errorf("Len() = %d, want 2", a.Len())
	}
	if err := a.Concat(MustNew("px", "sym")); err == nil {
		t.Error("Concat() with reordered columns: error = nil, want error")
	}

	r := a.Row(1)
	r[0] = "X"
	if v, _ := a.Value(1, "sym"); v != "MSFT" {
		t.Errorf("sym = %v after mutating Row(), want MSFT", v)
	}
}
