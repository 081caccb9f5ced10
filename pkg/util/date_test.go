package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeGarbage(t *testing.T) {
	if _, ok := ParseTime("not-a-time"); ok {
		t.Fatalf("expected failure")
	}
	if _, ok := ParseTime(""); ok {
		t.Fatalf("expected failure on empty")
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestDayUTC(t *testing.T) {
	// 01:30 +03:00 is 22:30 UTC the previous day.
	in := time.Date(2024, 10, 11, 1, 30, 0, 0, time.FixedZone("X", 3*3600))
	got := DayUTC(in)
	want := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("unexpected day %v", got)
	}
}

func TestAlignDayRange(t *testing.T) {
	from := time.Date(2024, 10, 1, 15, 30, 0, 0, time.UTC)
	to := time.Date(2024, 10, 3, 2, 0, 0, 0, time.UTC)
	gotFrom, gotTo := AlignDayRange(from, to)
	if !gotFrom.Equal(time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from %v", gotFrom)
	}
	if !gotTo.After(time.Date(2024, 10, 3, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("unexpected to %v", gotTo)
	}
}
