package sortkey

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestBetweenEmptyList(t *testing.T) {
	key, err := Between(nil, nil)
	if err != nil {
		t.Fatalf("Between(nil, nil) returned error: %v", err)
	}
	if !key.Equal(Default) {
		t.Errorf("Between(nil, nil) = %s, want %s", key, Default)
	}
}

func TestBetweenAppend(t *testing.T) {
	last := decimal.NewFromInt(1000)
	key, err := Between(&last, nil)
	if err != nil {
		t.Fatalf("Between returned error: %v", err)
	}
	if key.Cmp(last) <= 0 {
		t.Errorf("append key %s is not above %s", key, last)
	}
	if !key.Equal(last.Add(Step)) {
		t.Errorf("append key = %s, want %s", key, last.Add(Step))
	}
}

func TestBetweenPrepend(t *testing.T) {
	first := decimal.NewFromInt(1000)
	key, err := Between(nil, &first)
	if err != nil {
		t.Fatalf("Between returned error: %v", err)
	}
	if key.Cmp(first) >= 0 {
		t.Errorf("prepend key %s is not below %s", key, first)
	}
	// A Step below 1000 would go negative; the key clamps at Min.
	if !key.Equal(Min) {
		t.Errorf("prepend key = %s, want clamped %s", key, Min)
	}
}

func TestBetweenStrictlyInside(t *testing.T) {
	lower := decimal.NewFromInt(100)
	upper := decimal.NewFromInt(200)

	for i := 0; i < 100; i++ {
		key, err := Between(&lower, &upper)
		if err != nil {
			t.Fatalf("Between returned error: %v", err)
		}
		if key.Cmp(lower) <= 0 || key.Cmp(upper) >= 0 {
			t.Fatalf("key %s not strictly inside (%s, %s)", key, lower, upper)
		}
	}
}

func TestBetweenJitterVaries(t *testing.T) {
	lower := decimal.NewFromInt(0)
	upper := decimal.NewFromInt(1 << 20)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		key, err := Between(&lower, &upper)
		if err != nil {
			t.Fatalf("Between returned error: %v", err)
		}
		seen[key.String()] = true
	}

	// Exact bisection would produce one value every time. With jitter over
	// a wide gap, 20 draws landing on a single value is effectively
	// impossible.
	if len(seen) < 2 {
		t.Errorf("expected varied keys across a wide gap, got only %v", seen)
	}
}

func TestBetweenJitterFullRange(t *testing.T) {
	// The widest gap there is: inserting between the range floor and a
	// record placed at Max. The precision-unit count of this gap does not
	// fit an int64, so the jitter window must be capped rather than
	// silently collapsing to one fixed midpoint.
	lower := Min
	upper := Max

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		key, err := Between(&lower, &upper)
		if err != nil {
			t.Fatalf("Between returned error: %v", err)
		}
		if key.Cmp(lower) <= 0 || key.Cmp(upper) >= 0 {
			t.Fatalf("key %s not strictly inside (%s, %s)", key, lower, upper)
		}
		seen[key.String()] = true
	}

	if len(seen) < 2 {
		t.Errorf("expected varied keys across the full range, got only %v", seen)
	}
}

func TestBetweenRepeatedBisection(t *testing.T) {
	// Repeatedly insert between a fixed lower bound and the last inserted
	// key. Keys must stay strictly ordered until the gap is exhausted.
	lower := decimal.NewFromInt(10)
	upper := decimal.NewFromInt(11)

	for i := 0; i < 60; i++ {
		key, err := Between(&lower, &upper)
		if errors.Is(err, ErrRenumberRequired) {
			return // gap exhausted, as documented
		}
		if err != nil {
			t.Fatalf("Between returned error: %v", err)
		}
		if key.Cmp(lower) <= 0 || key.Cmp(upper) >= 0 {
			t.Fatalf("iteration %d: key %s escaped (%s, %s)", i, key, lower, upper)
		}
		upper = key
	}
}

func TestBetweenExhaustedGap(t *testing.T) {
	lower := decimal.RequireFromString("100.00000001")
	upper := decimal.RequireFromString("100.00000002")

	_, err := Between(&lower, &upper)
	if !errors.Is(err, ErrRenumberRequired) {
		t.Errorf("Between on exhausted gap: err = %v, want ErrRenumberRequired", err)
	}
}

func TestBetweenEqualBounds(t *testing.T) {
	bound := decimal.NewFromInt(500)
	_, err := Between(&bound, &bound)
	if !errors.Is(err, ErrRenumberRequired) {
		t.Errorf("Between on zero gap: err = %v, want ErrRenumberRequired", err)
	}
}

func TestSequence(t *testing.T) {
	keys := Sequence(5)
	if len(keys) != 5 {
		t.Fatalf("Sequence(5) returned %d keys", len(keys))
	}

	for i := 0; i < len(keys); i++ {
		if i > 0 && keys[i].Cmp(keys[i-1]) <= 0 {
			t.Errorf("keys not strictly ascending: %s then %s", keys[i-1], keys[i])
		}
		if keys[i].Cmp(Min) <= 0 || keys[i].Cmp(Max) >= 0 {
			t.Errorf("key %s outside usable range", keys[i])
		}
	}

	// Even spacing, so freshly renumbered lists always have room for a
	// between-insert.
	gap := keys[1].Sub(keys[0])
	for i := 2; i < len(keys); i++ {
		if !keys[i].Sub(keys[i-1]).Equal(gap) {
			t.Errorf("uneven spacing at %d", i)
		}
	}
}

func TestSequenceEmpty(t *testing.T) {
	if keys := Sequence(0); len(keys) != 0 {
		t.Errorf("Sequence(0) returned %d keys", len(keys))
	}
}
