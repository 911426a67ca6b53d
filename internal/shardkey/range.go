package shardkey

import "fmt"

// Range is a half-open interval [Low, High) over keys of a single Kind.
// Ranges never wrap: Low is always strictly less than High. The full range
// over a kind runs from Min(kind) to Max(kind).
type Range struct {
	Low  Key
	High Key
}

// NewRange validates and constructs a Range. Both keys must share a Kind
// and Low must be strictly less than High.
func NewRange(low, high Key) (Range, error) {
	if low.Kind() != high.Kind() {
		return Range{}, fmt.Errorf("shardkey: range endpoints have different kinds (%v, %v)", low.Kind(), high.Kind())
	}
	cmp, err := low.Compare(high)
	if err != nil {
		return Range{}, err
	}
	if cmp >= 0 {
		return Range{}, fmt.Errorf("shardkey: range low must be strictly less than high")
	}
	return Range{Low: low, High: high}, nil
}

// Full returns the range spanning every representable value of kind, i.e.
// [Min(kind), Max(kind)).
func Full(kind Kind) Range {
	return Range{Low: Min(kind), High: Max(kind)}
}

// Kind reports the Kind of this range's endpoints.
func (r Range) Kind() Kind { return r.Low.Kind() }

// Contains reports whether key falls within [r.Low, r.High).
func (r Range) Contains(key Key) bool {
	if key.Kind() != r.Kind() {
		return false
	}
	loCmp, _ := r.Low.Compare(key)
	hiCmp, _ := key.Compare(r.High)
	return loCmp <= 0 && hiCmp < 0
}

// Intersects reports whether r and other share at least one key. Two
// half-open ranges intersect iff each one's low endpoint precedes the
// other's high endpoint.
func (r Range) Intersects(other Range) bool {
	if r.Kind() != other.Kind() {
		return false
	}
	aLoBHi, _ := r.Low.Compare(other.High)
	bLoAHi, _ := other.Low.Compare(r.High)
	return aLoBHi < 0 && bLoAHi < 0
}

// Intersect returns the tighter half-open range shared by r and other, and
// false if they do not intersect.
func (r Range) Intersect(other Range) (Range, bool) {
	if !r.Intersects(other) {
		return Range{}, false
	}
	low := r.Low
	if cmp, _ := other.Low.Compare(r.Low); cmp > 0 {
		low = other.Low
	}
	high := r.High
	if cmp, _ := other.High.Compare(r.High); cmp < 0 {
		high = other.High
	}
	return Range{Low: low, High: high}, true
}

// Equals reports whether r and other have identical endpoints.
func (r Range) Equals(other Range) bool {
	return r.Low.Equals(other.Low) && r.High.Equals(other.High)
}

// IsPoint reports whether r represents exactly one key, i.e. High is the
// immediate Successor of Low. Point mappings are built from such ranges.
func (r Range) IsPoint() bool {
	return r.Low.Successor().Equals(r.High)
}

// String renders the range for logs and error messages.
func (r Range) String() string {
	lo := "-inf"
	if !r.Low.IsMin() {
		lo = fmt.Sprintf("%x", r.Low.Raw())
	}
	hi := "+inf"
	if !r.High.IsMax() {
		hi = fmt.Sprintf("%x", r.High.Raw())
	}
	return fmt.Sprintf("[%s, %s)", lo, hi)
}
