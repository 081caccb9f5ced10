package ratelimit

import (
	"strconv"
	"testing"
	"time"
)

func TestAllowBurstThenDeny(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		if !l.Allow("c1", 3, 0.001) {
			t.Fatalf("request %d within capacity denied", i+1)
		}
	}
	if l.Allow("c1", 3, 0.001) {
		t.Fatal("request above capacity allowed")
	}
}

func TestAllowRefills(t *testing.T) {
	l := New()
	if !l.Allow("c1", 1, 100) {
		t.Fatal("first request denied")
	}
	if l.Allow("c1", 1, 100) {
		t.Fatal("empty bucket allowed")
	}
	time.Sleep(50 * time.Millisecond)
	if !l.Allow("c1", 1, 100) {
		t.Fatal("bucket did not refill")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New()
	if !l.Allow("c1", 1, 0.001) {
		t.Fatal("c1 denied")
	}
	if !l.Allow("c2", 1, 0.001) {
		t.Fatal("c2 shares c1 bucket")
	}
}

func TestSweepDropsIdleBuckets(t *testing.T) {
	l := New()
	old := time.Now().Add(-time.Hour)
	for i := 0; i < sweepAbove+1; i++ {
		l.m["idle-"+strconv.Itoa(i)] = &bucket{
			tokens: 1, capacity: 1, refillRate: 1, last: old,
		}
	}
	l.Allow("fresh", 1, 1)
	if got := len(l.m); got != 1 {
		t.Fatalf("sweep left %d buckets, want 1", got)
	}
}
