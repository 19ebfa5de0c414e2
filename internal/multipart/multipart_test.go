package multipart

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/saviobatista/ais-receiver/internal/types"
)

func fragment(seq string, count, number int, payload string, fill int) types.Sentence {
	return types.Sentence{
		Talker:         "AIVDM",
		FragmentCount:  count,
		FragmentNumber: number,
		SequenceID:     seq,
		Channel:        "A",
		Payload:        payload,
		FillBits:       fill,
	}
}

func TestAdd_SingleFragmentPassesThrough(t *testing.T) {
	r := New(DefaultTimeout)

	got, ok := r.Add(fragment("", 1, 1, "177KQJ5000G?tO`K>RA1wUbN0TKH", 0), time.Now())
	if !ok {
		t.Fatal("single fragment should complete immediately")
	}
	if got.Payload != "177KQJ5000G?tO`K>RA1wUbN0TKH" || got.FillBits != 0 {
		t.Errorf("unexpected result %+v", got)
	}
	if r.Pending() != 0 {
		t.Errorf("single fragment created state, pending = %d", r.Pending())
	}
}

func TestAdd_AnyOrder(t *testing.T) {
	parts := []string{"AAA", "BBB", "CCC", "DDD"}
	orders := [][]int{
		{1, 2, 3, 4},
		{4, 3, 2, 1},
		{2, 4, 1, 3},
		{3, 1, 4, 2},
	}

	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			r := New(DefaultTimeout)
			start := time.Now()

			completions := 0
			var result Complete
			for i, n := range order {
				fill := 0
				if n == len(parts) {
					fill = 4
				}
				got, ok := r.Add(fragment("7", len(parts), n, parts[n-1], fill), start.Add(time.Duration(i)*time.Second))
				if ok {
					completions++
					result = got
					if i != len(order)-1 {
						t.Fatalf("completed early after %d fragments", i+1)
					}
				}
			}

			if completions != 1 {
				t.Fatalf("expected exactly one completion, got %d", completions)
			}
			if result.Payload != strings.Join(parts, "") {
				t.Errorf("Payload = %q, want %q", result.Payload, strings.Join(parts, ""))
			}
			if result.FillBits != 4 {
				t.Errorf("FillBits = %d, want 4 from the last fragment", result.FillBits)
			}
			if r.Pending() != 0 {
				t.Errorf("state left behind, pending = %d", r.Pending())
			}
		})
	}
}

func TestAdd_DuplicateFragmentOverwrites(t *testing.T) {
	r := New(DefaultTimeout)
	now := time.Now()

	if _, ok := r.Add(fragment("1", 2, 1, "OLD", 0), now); ok {
		t.Fatal("unexpected completion")
	}
	if _, ok := r.Add(fragment("1", 2, 1, "NEW", 0), now); ok {
		t.Fatal("duplicate fragment completed the sequence")
	}
	got, ok := r.Add(fragment("1", 2, 2, "TAIL", 2), now)
	if !ok {
		t.Fatal("sequence did not complete")
	}
	if got.Payload != "NEWTAIL" {
		t.Errorf("Payload = %q, want NEWTAIL", got.Payload)
	}
}

func TestAdd_InterleavedSequences(t *testing.T) {
	r := New(DefaultTimeout)
	now := time.Now()

	r.Add(fragment("1", 2, 1, "a1", 0), now)
	r.Add(fragment("2", 2, 1, "b1", 0), now)
	if r.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", r.Pending())
	}

	got, ok := r.Add(fragment("2", 2, 2, "b2", 0), now)
	if !ok || got.Payload != "b1b2" {
		t.Errorf("sequence 2 = %q, %v", got.Payload, ok)
	}
	got, ok = r.Add(fragment("1", 2, 2, "a2", 0), now)
	if !ok || got.Payload != "a1a2" {
		t.Errorf("sequence 1 = %q, %v", got.Payload, ok)
	}
}

func TestAdd_TimeoutPurgesSequence(t *testing.T) {
	r := New(DefaultTimeout)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// fragments 1 and 3 of 3 arrive, 2 goes missing
	r.Add(fragment("5", 3, 1, "P1", 0), start)
	r.Add(fragment("5", 3, 3, "P3", 0), start.Add(time.Second))

	// an unrelated fragment after the window triggers the sweep
	r.Add(fragment("6", 2, 1, "X1", 0), start.Add(61*time.Second))
	if r.Pending() != 1 {
		t.Fatalf("pending = %d, want only sequence 6", r.Pending())
	}
	if r.Expired() != 1 {
		t.Errorf("Expired() = %d, want 1", r.Expired())
	}

	// the missing fragment arriving late starts a new sequence instead of completing the old one
	if got, ok := r.Add(fragment("5", 3, 2, "P2", 0), start.Add(62*time.Second)); ok {
		t.Fatalf("expired sequence was emitted: %+v", got)
	}
	if r.Pending() != 2 {
		t.Errorf("pending = %d, want 2", r.Pending())
	}
}

func TestAdd_LateFragmentOfExpiredSequence(t *testing.T) {
	r := New(DefaultTimeout)
	start := time.Now()

	r.Add(fragment("9", 2, 1, "P1", 0), start)
	if _, ok := r.Add(fragment("9", 2, 2, "P2", 0), start.Add(90*time.Second)); ok {
		t.Fatal("fragment arriving after the window completed an expired sequence")
	}
	if r.Pending() != 1 {
		t.Errorf("pending = %d, want the new sequence only", r.Pending())
	}
}

func TestAdd_WithinWindowCompletes(t *testing.T) {
	r := New(DefaultTimeout)
	start := time.Now()

	r.Add(fragment("4", 2, 1, "P1", 0), start)
	got, ok := r.Add(fragment("4", 2, 2, "P2", 1), start.Add(59*time.Second))
	if !ok || got.Payload != "P1P2" || got.FillBits != 1 {
		t.Errorf("Add() = %+v, %v", got, ok)
	}
}

func TestAdd_CountChangeRestartsSequence(t *testing.T) {
	r := New(DefaultTimeout)
	now := time.Now()

	r.Add(fragment("2", 3, 1, "OLD", 0), now)
	r.Add(fragment("2", 2, 1, "N1", 0), now)
	got, ok := r.Add(fragment("2", 2, 2, "N2", 0), now)
	if !ok || got.Payload != "N1N2" {
		t.Errorf("Add() = %+v, %v; want N1N2", got, ok)
	}
}
