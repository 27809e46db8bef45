package sync

import (
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Interval
		wantErr bool
	}{
		{name: "empty defaults to yearly", input: "", want: IntervalYearly},
		{name: "full maps to yearly", input: "full", want: IntervalYearly},
		{name: "yearly", input: "yearly", want: IntervalYearly},
		{name: "monthly", input: "monthly", want: IntervalMonthly},
		{name: "daily", input: "daily", want: IntervalDaily},
		{name: "case insensitive", input: "  Monthly ", want: IntervalMonthly},
		{name: "unknown rejected", input: "weekly", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInterval(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseInterval(%q) expected error, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInterval(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseInterval(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestWindowEnd(t *testing.T) {
	tests := []struct {
		name     string
		cursor   time.Time
		interval Interval
		want     time.Time
	}{
		{
			name:     "daily ends same day",
			cursor:   time.Date(2020, 6, 16, 10, 30, 0, 0, time.UTC),
			interval: IntervalDaily,
			want:     time.Date(2020, 6, 16, 23, 59, 59, 0, time.UTC),
		},
		{
			name:     "monthly ends last second of month",
			cursor:   time.Date(2020, 6, 16, 0, 0, 0, 0, time.UTC),
			interval: IntervalMonthly,
			want:     time.Date(2020, 6, 30, 23, 59, 59, 0, time.UTC),
		},
		{
			name:     "monthly handles leap february",
			cursor:   time.Date(2020, 2, 5, 0, 0, 0, 0, time.UTC),
			interval: IntervalMonthly,
			want:     time.Date(2020, 2, 29, 23, 59, 59, 0, time.UTC),
		},
		{
			name:     "monthly handles plain february",
			cursor:   time.Date(2021, 2, 5, 0, 0, 0, 0, time.UTC),
			interval: IntervalMonthly,
			want:     time.Date(2021, 2, 28, 23, 59, 59, 0, time.UTC),
		},
		{
			name:     "monthly december rolls into next year correctly",
			cursor:   time.Date(2020, 12, 5, 0, 0, 0, 0, time.UTC),
			interval: IntervalMonthly,
			want:     time.Date(2020, 12, 31, 23, 59, 59, 0, time.UTC),
		},
		{
			name:     "yearly ends december 31",
			cursor:   time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC),
			interval: IntervalYearly,
			want:     time.Date(2020, 12, 31, 23, 59, 59, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := windowEnd(tt.cursor, tt.interval); !got.Equal(tt.want) {
				t.Errorf("windowEnd(%v, %s) = %v, want %v", tt.cursor, tt.interval, got, tt.want)
			}
		})
	}
}

func TestNextWindowStart(t *testing.T) {
	tests := []struct {
		name     string
		cursor   time.Time
		interval Interval
		want     time.Time
	}{
		{
			name:     "daily advances to midnight next day",
			cursor:   time.Date(2020, 6, 16, 10, 30, 0, 0, time.UTC),
			interval: IntervalDaily,
			want:     time.Date(2020, 6, 17, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "monthly advances to first of next month",
			cursor:   time.Date(2020, 6, 16, 10, 30, 0, 0, time.UTC),
			interval: IntervalMonthly,
			want:     time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "monthly december advances into next year",
			cursor:   time.Date(2020, 12, 5, 0, 0, 0, 0, time.UTC),
			interval: IntervalMonthly,
			want:     time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "yearly advances to january first",
			cursor:   time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC),
			interval: IntervalYearly,
			want:     time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextWindowStart(tt.cursor, tt.interval); !got.Equal(tt.want) {
				t.Errorf("nextWindowStart(%v, %s) = %v, want %v", tt.cursor, tt.interval, got, tt.want)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	got := formatTimestamp(time.Date(2020, 6, 16, 7, 8, 9, 0, time.UTC))
	if got != "2020-06-16T07:08:09Z" {
		t.Errorf("formatTimestamp() = %q, want 2020-06-16T07:08:09Z", got)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "canonical layout",
			input: "2020-06-15T00:00:00Z",
			want:  time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "rfc3339 offset fallback",
			input: "2020-06-15T02:00:00+02:00",
			want:  time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC),
		},
		{name: "garbage rejected", input: "not-a-date", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimestamp(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseTimestamp(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTimestamp(%q) error = %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
