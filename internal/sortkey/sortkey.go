// Package sortkey generates fractional ordering values for user-reorderable
// task lists.
//
// A sort key is a fixed-precision decimal, not a float, so repeated bisection
// does not drift through binary representability. Inserting a task between two
// neighbors picks a value strictly between their keys; only when a gap is
// exhausted does the caller fall back to renumbering the whole list, which is
// an explicit out-of-band operation (see Sequence).
package sortkey

import (
	"errors"
	"math/rand/v2"

	"github.com/shopspring/decimal"
)

// ErrRenumberRequired is returned by Between when no representable value
// exists strictly between the two bounds. The affected list must be
// renumbered; Between never attempts that transparently.
var ErrRenumberRequired = errors.New("sortkey: gap exhausted, list renumber required")

var (
	// Min and Max bound the usable key range.
	Min = decimal.NewFromInt(0)
	Max = decimal.NewFromInt(1 << 40)

	// Step is the fixed offset used when inserting before the first or after
	// the last element of a list.
	Step = decimal.NewFromInt(1 << 16)

	// Default is the key for the first record of a list: the midpoint of the
	// usable range.
	Default = Min.Add(Max).Div(two)

	// precision is the smallest gap Between will still split. Gaps at or
	// below this are treated as exhausted.
	precision = decimal.New(1, -8) // 1e-8

	two = decimal.NewFromInt(2)
)

// Between returns a sort key for a record inserted between two neighbors.
//
// Either bound may be nil: nil/nil yields Default, a single bound yields a
// Step offset from it clamped to [Min, Max]. With both bounds set, the result
// is strictly between them; wide gaps get random jitter instead of exact
// bisection so that two inserts into the same gap rarely pick the same
// midpoint. Duplicate keys remain possible and are tie-broken downstream by
// creation time.
func Between(lower, upper *decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case lower == nil && upper == nil:
		return Default, nil
	case upper == nil:
		return clamp(lower.Add(Step)), nil
	case lower == nil:
		return clamp(upper.Sub(Step)), nil
	}

	gap := upper.Sub(*lower)
	if gap.Cmp(precision) <= 0 {
		return decimal.Decimal{}, ErrRenumberRequired
	}

	key := jitter(*lower, gap)
	if key.Cmp(*lower) <= 0 || key.Cmp(*upper) >= 0 {
		// Jitter rounding can land on a bound when the gap is only a few
		// precision units wide; fall back to the exact midpoint.
		key = lower.Add(gap.Div(two))
	}
	if key.Cmp(*lower) <= 0 || key.Cmp(*upper) >= 0 {
		return decimal.Decimal{}, ErrRenumberRequired
	}
	return key, nil
}

// maxJitterUnits caps the gap width used for jittering so the unit count
// stays convertible to int64. Gaps wider than the cap jitter within the first
// cap-sized window above lower, which is still strictly inside the gap.
var maxJitterUnits = decimal.NewFromInt(1 << 62)

// jitter picks a value in the middle half of the gap, at precision
// granularity. Small gaps degrade to plain bisection.
func jitter(lower, gap decimal.Decimal) decimal.Decimal {
	window := gap.Div(precision)
	if window.Cmp(maxJitterUnits) > 0 {
		window = maxJitterUnits
	}
	units := window.IntPart()
	if units < 8 {
		return lower.Add(gap.Div(two))
	}
	offset := units/4 + rand.Int64N(units/2)
	return lower.Add(precision.Mul(decimal.NewFromInt(offset)))
}

// Sequence returns n evenly spaced keys for a full renumber of a list, in
// ascending order, starting one Step above Min.
func Sequence(n int) []decimal.Decimal {
	keys := make([]decimal.Decimal, n)
	for i := range keys {
		keys[i] = Min.Add(Step.Mul(decimal.NewFromInt(int64(i + 1))))
	}
	return keys
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.Cmp(Min) < 0 {
		return Min
	}
	if d.Cmp(Max) > 0 {
		return Max
	}
	return d
}
