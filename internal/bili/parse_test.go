package bili

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"  ", 0},
		{"0", 0},
		{"12345", 12345},
		{"12,345", 12345},
		{"1,234,567", 1234567},
		{"3.5万", 35000},
		{"12万", 120000},
		{"2亿", 200000000},
		{"1.5亿", 150000000},
		{"abc", 0},
		{"abc万", 0},
		{"万", 0},
		{"3.5", 0}, // bare decimals are not counts
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseCount(tt.in); got != tt.want {
				t.Errorf("ParseCount(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestWithinDaysAt(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	day := int64(24 * 60 * 60)
	ts := func(daysAgo int64) int64 { return now.Unix() - daysAgo*day }

	tests := []struct {
		name string
		ts   int64
		days int
		want bool
	}{
		{"zero timestamp", 0, 7, false},
		{"today", ts(0), 3, true},
		{"exactly on the boundary", ts(3), 3, true},
		{"just past the boundary", ts(4), 3, false},
		{"future publish", now.Unix() + day, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithinDaysAt(tt.ts, tt.days, now); got != tt.want {
				t.Errorf("WithinDaysAt(%d, %d) = %v, want %v", tt.ts, tt.days, got, tt.want)
			}
		})
	}
}

func TestCountUnmarshal(t *testing.T) {
	var v struct {
		Play    Count `json:"play"`
		Comment Count `json:"comment"`
		Missing Count `json:"missing"`
	}
	data := []byte(`{"play":"3.5万","comment":1234.9,"missing":null}`)
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Play.Int64() != 35000 {
		t.Errorf("play = %d, want 35000", v.Play.Int64())
	}
	if v.Comment.Int64() != 1234 {
		t.Errorf("comment = %d, want 1234", v.Comment.Int64())
	}
	if v.Missing.Int64() != 0 {
		t.Errorf("missing = %d, want 0", v.Missing.Int64())
	}
	if v.Play.String() != "3.5万" {
		t.Errorf("play string = %q, want raw form", v.Play.String())
	}
	if v.Missing.String() != "0" {
		t.Errorf("missing string = %q, want \"0\"", v.Missing.String())
	}
}
