package telemetry

import (
	"math"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		rec  Record
		want string
	}{
		{Record{Remaining: 3, Value: 24.17, UptimeMS: 105321}, "3,24.17,105321"},
		{Record{Remaining: 0, Value: 0, UptimeMS: 0}, "0,0.00,0"},
		{Record{Remaining: 9, Value: -3.456, UptimeMS: 12}, "9,-3.46,12"},
		{Record{Remaining: 1, Value: 50, UptimeMS: 1000}, "1,50.00,1000"},
	}
	for _, tt := range tests {
		if got := tt.rec.Format(); got != tt.want {
			t.Errorf("Format(%+v) = %q, want %q", tt.rec, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	recs := []Record{
		{Remaining: 4, Value: 23.981, UptimeMS: 105321},
		{Remaining: 0, Value: 0.004, UptimeMS: 1},
		{Remaining: 18446744073709551615, Value: 49.99, UptimeMS: 18446744073709551615},
	}
	for _, rec := range recs {
		got, err := Parse(rec.Format())
		if err != nil {
			t.Errorf("Parse(%q) error = %v", rec.Format(), err)
			continue
		}
		if got.Remaining != rec.Remaining {
			t.Errorf("round-trip remaining = %d, want %d", got.Remaining, rec.Remaining)
		}
		if got.UptimeMS != rec.UptimeMS {
			t.Errorf("round-trip uptime = %d, want %d", got.UptimeMS, rec.UptimeMS)
		}
		if math.Abs(got.Value-rec.Value) > 0.01 {
			t.Errorf("round-trip value = %v, want %v within 0.01", got.Value, rec.Value)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"1,2",
		"1,2,3,4",
		"x,2.00,3",
		"1,two,3",
		"1,2.00,z",
		"-1,2.00,3",
	}
	for _, s := range bad {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) = nil error, want error", s)
		}
	}
}
