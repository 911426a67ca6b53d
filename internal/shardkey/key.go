package shardkey

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the scalar type a Key wraps. The zero Kind is intentionally
// invalid (KindUnspecified) so a zero-value Key is never mistaken for a valid
// Int32 key.
type Kind int

const (
	KindUnspecified Kind = iota
	KindInt32
	KindInt64
	KindGUID
	KindBinary
	KindDateTime
	KindTimeSpan
	KindDateTimeOffset
)

// String renders the Kind for logging and error messages.
func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "Int32"
	case KindInt64:
		return "Int64"
	case KindGUID:
		return "GUID"
	case KindBinary:
		return "Binary"
	case KindDateTime:
		return "DateTime"
	case KindTimeSpan:
		return "TimeSpan"
	case KindDateTimeOffset:
		return "DateTimeOffset"
	default:
		return "Unspecified"
	}
}

// MaxBinaryLength is the hard limit on normalized binary key length.
const MaxBinaryLength = 128

// guidSortOrder permutes a standard RFC 4122 big-endian UUID's bytes into
// the server-native comparison order used by the GSM/LSM wire protocol,
// matching the byte swap SQL Server applies when sorting uniqueidentifier
// columns: the first three fields (4-byte, 2-byte, 2-byte) are reversed
// in place, and the trailing 8 bytes are left in document order.
var guidSortOrder = [16]int{3, 2, 1, 0, 5, 4, 7, 6, 8, 9, 10, 11, 12, 13, 14, 15}

// Key is an immutable, normalized, totally ordered shard key value. The zero
// Key is not valid; construct one with FromValue, FromRaw, Min, or Max.
type Key struct {
	// raw is the normalized byte encoding. nil means positive infinity
	// (the type's maximum); a non-nil zero-length slice means negative
	// infinity (the type's minimum). See package doc.
	raw  []byte
	kind Kind
}

// Kind reports which scalar type this key wraps.
func (k Key) Kind() Kind { return k.kind }

// IsMin reports whether k is the per-type negative-infinity sentinel.
func (k Key) IsMin() bool { return k.raw != nil && len(k.raw) == 0 }

// IsMax reports whether k is the per-type positive-infinity sentinel
// (absent bytes on the wire, nil here).
func (k Key) IsMax() bool { return k.raw == nil }

// Raw returns the normalized byte encoding, exactly as it would be written
// on the wire: nil for +infinity, a non-nil empty slice for -infinity.
func (k Key) Raw() []byte { return k.raw }

// Min returns the per-type minimum key ("negative infinity"), which encodes
// as an empty (non-nil) byte string.
func Min(kind Kind) Key { return Key{kind: kind, raw: []byte{}} }

// Max returns the per-type maximum key ("positive infinity"), which encodes
// as absent bytes.
func Max(kind Kind) Key { return Key{kind: kind, raw: nil} }

// FromRaw wraps an already-normalized byte string as a Key of the given
// kind, validating the binary-length limit. It does not re-normalize: bytes
// must already be in the form produced by FromValue / normalize.
func FromRaw(kind Kind, raw []byte) (Key, error) {
	if kind == KindBinary && len(raw) > MaxBinaryLength {
		return Key{}, fmt.Errorf("shardkey: binary key length %d exceeds limit %d", len(raw), MaxBinaryLength)
	}
	if raw == nil {
		return Key{kind: kind, raw: nil}, nil
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return Key{kind: kind, raw: cp}, nil
}

// FromValue normalizes a native Go value into a Key of the given kind. The
// accepted Go type per kind is:
//
//	KindInt32          int32
//	KindInt64          int64
//	KindGUID           uuid.UUID
//	KindBinary         []byte  (truncated of trailing zero bytes)
//	KindDateTime       time.Time (compared/stored as UTC ticks)
//	KindTimeSpan       time.Duration
//	KindDateTimeOffset DateTimeOffset
func FromValue(kind Kind, value any) (Key, error) {
	switch kind {
	case KindInt32:
		v, ok := value.(int32)
		if !ok {
			return Key{}, fmt.Errorf("shardkey: KindInt32 requires int32, got %T", value)
		}
		return Key{kind: kind, raw: normalizeInt64(int64(v), 4)}, nil
	case KindInt64:
		v, ok := value.(int64)
		if !ok {
			return Key{}, fmt.Errorf("shardkey: KindInt64 requires int64, got %T", value)
		}
		return Key{kind: kind, raw: normalizeInt64(v, 8)}, nil
	case KindGUID:
		v, ok := value.(uuid.UUID)
		if !ok {
			return Key{}, fmt.Errorf("shardkey: KindGUID requires uuid.UUID, got %T", value)
		}
		return Key{kind: kind, raw: normalizeGUID(v)}, nil
	case KindBinary:
		v, ok := value.([]byte)
		if !ok {
			return Key{}, fmt.Errorf("shardkey: KindBinary requires []byte, got %T", value)
		}
		return FromRaw(kind, trimTrailingZeros(v))
	case KindDateTime:
		v, ok := value.(time.Time)
		if !ok {
			return Key{}, fmt.Errorf("shardkey: KindDateTime requires time.Time, got %T", value)
		}
		return Key{kind: kind, raw: normalizeTicks(ticksSinceEpoch(v.UTC()))}, nil
	case KindTimeSpan:
		v, ok := value.(time.Duration)
		if !ok {
			return Key{}, fmt.Errorf("shardkey: KindTimeSpan requires time.Duration, got %T", value)
		}
		return Key{kind: kind, raw: normalizeInt64(int64(v), 8)}, nil
	case KindDateTimeOffset:
		v, ok := value.(DateTimeOffset)
		if !ok {
			return Key{}, fmt.Errorf("shardkey: KindDateTimeOffset requires DateTimeOffset, got %T", value)
		}
		return Key{kind: kind, raw: normalizeDateTimeOffset(v)}, nil
	default:
		return Key{}, fmt.Errorf("shardkey: unsupported kind %v", kind)
	}
}

// Int32 returns the wrapped int32 value. It fails if k is not a KindInt32
// key or is the positive-infinity sentinel (which has no representable
// value).
func (k Key) Int32() (int32, error) {
	if k.kind != KindInt32 {
		return 0, fmt.Errorf("shardkey: key is %v, not Int32", k.kind)
	}
	if k.IsMax() {
		return 0, fmt.Errorf("shardkey: cannot take value of positive infinity")
	}
	v, err := denormalizeInt64(k.raw, 4)
	return int32(v), err
}

// Int64 returns the wrapped int64 value, subject to the same constraints as
// Int32.
func (k Key) Int64() (int64, error) {
	if k.kind != KindInt64 {
		return 0, fmt.Errorf("shardkey: key is %v, not Int64", k.kind)
	}
	if k.IsMax() {
		return 0, fmt.Errorf("shardkey: cannot take value of positive infinity")
	}
	return denormalizeInt64(k.raw, 8)
}

// GUID returns the wrapped uuid.UUID value.
func (k Key) GUID() (uuid.UUID, error) {
	if k.kind != KindGUID {
		return uuid.UUID{}, fmt.Errorf("shardkey: key is %v, not GUID", k.kind)
	}
	if k.IsMax() {
		return uuid.UUID{}, fmt.Errorf("shardkey: cannot take value of positive infinity")
	}
	return denormalizeGUID(k.raw)
}

// Binary returns the wrapped byte slice. Unlike the other accessors the
// minimum-value binary key ([]byte{}) is a legitimate value, so IsMin is
// not an error condition here.
func (k Key) Binary() ([]byte, error) {
	if k.kind != KindBinary {
		return nil, fmt.Errorf("shardkey: key is %v, not Binary", k.kind)
	}
	if k.IsMax() {
		return nil, fmt.Errorf("shardkey: cannot take value of positive infinity")
	}
	cp := make([]byte, len(k.raw))
	copy(cp, k.raw)
	return cp, nil
}

// Time returns the wrapped UTC time.Time value for a KindDateTime key.
func (k Key) Time() (time.Time, error) {
	if k.kind != KindDateTime {
		return time.Time{}, fmt.Errorf("shardkey: key is %v, not DateTime", k.kind)
	}
	if k.IsMax() {
		return time.Time{}, fmt.Errorf("shardkey: cannot take value of positive infinity")
	}
	ticks, err := denormalizeTicks(k.raw)
	if err != nil {
		return time.Time{}, err
	}
	return epochPlusTicks(ticks), nil
}

// Duration returns the wrapped time.Duration value for a KindTimeSpan key.
func (k Key) Duration() (time.Duration, error) {
	if k.kind != KindTimeSpan {
		return 0, fmt.Errorf("shardkey: key is %v, not TimeSpan", k.kind)
	}
	if k.IsMax() {
		return 0, fmt.Errorf("shardkey: cannot take value of positive infinity")
	}
	v, err := denormalizeInt64(k.raw, 8)
	return time.Duration(v), err
}

// DateTimeOffset is a timestamp paired with the UTC offset it was originally
// expressed in. Ordering and equality (via Key.Compare/Equals) use only the
// UTC instant; OffsetMinutes is carried for round-tripping the original
// representation and is not itself ordered on.
type DateTimeOffset struct {
	UTC           time.Time
	OffsetMinutes int16
}

// DateTimeOffset returns the wrapped value for a KindDateTimeOffset key.
func (k Key) DateTimeOffset() (DateTimeOffset, error) {
	if k.kind != KindDateTimeOffset {
		return DateTimeOffset{}, fmt.Errorf("shardkey: key is %v, not DateTimeOffset", k.kind)
	}
	if k.IsMax() {
		return DateTimeOffset{}, fmt.Errorf("shardkey: cannot take value of positive infinity")
	}
	if len(k.raw) != 16 {
		return DateTimeOffset{}, fmt.Errorf("shardkey: expected 16 normalized DateTimeOffset bytes, got %d", len(k.raw))
	}
	ticks, err := denormalizeTicks(k.raw[:8])
	if err != nil {
		return DateTimeOffset{}, err
	}
	offsetTicks, err := denormalizeInt64(k.raw[8:16], 8)
	if err != nil {
		return DateTimeOffset{}, err
	}
	return DateTimeOffset{
		UTC:           epochPlusTicks(ticks),
		OffsetMinutes: int16(offsetTicks / (60 * ticksPerSecond)),
	}, nil
}

// Compare returns -1, 0, or 1 as k is less than, equal to, or greater than
// other. It is an error to compare keys of different Kind. Comparison is
// lexicographic over the normalized bytes, except that for DateTimeOffset
// keys only the UTC portion is compared: keys with the same UTC instant
// and different offsets compare equal.
func (k Key) Compare(other Key) (int, error) {
	if k.kind != other.kind {
		return 0, fmt.Errorf("shardkey: cannot compare %v with %v", k.kind, other.kind)
	}
	if k.kind == KindDateTimeOffset {
		return compareRaw(utcPrefix(k.raw), utcPrefix(other.raw)), nil
	}
	return compareRaw(k.raw, other.raw), nil
}

// DateTimeOffsetUTCOnly compares two KindDateTimeOffset keys using only
// their UTC instant, the same ordering Compare applies to DateTimeOffset
// keys; unlike Compare it rejects keys of any other Kind.
func DateTimeOffsetUTCOnly(a, b Key) (int, error) {
	if a.kind != KindDateTimeOffset || b.kind != KindDateTimeOffset {
		return 0, fmt.Errorf("shardkey: DateTimeOffsetUTCOnly requires DateTimeOffset keys")
	}
	return compareRaw(utcPrefix(a.raw), utcPrefix(b.raw)), nil
}

func utcPrefix(raw []byte) []byte {
	if raw == nil {
		return nil
	}
	if len(raw) < 8 {
		return raw
	}
	return raw[:8]
}

// compareRaw implements the shared nil/empty/lexicographic ordering rule:
// nil (positive infinity) is greatest, empty is least, and otherwise the
// longer array is greater when one is a strict prefix of the other.
func compareRaw(a, b []byte) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) == len(b):
		return 0
	case len(a) < len(b):
		return -1
	default:
		return 1
	}
}

// Equals reports whether k and other have the same Kind and compare equal.
// Keys of different Kind are never equal (Compare is not invoked, so
// mismatched kinds simply return false rather than erroring).
func (k Key) Equals(other Key) bool {
	if k.kind != other.kind {
		return false
	}
	if k.kind == KindDateTimeOffset {
		return compareRaw(utcPrefix(k.raw), utcPrefix(other.raw)) == 0
	}
	return compareRaw(k.raw, other.raw) == 0
}

// Hash returns a hash consistent with Equals: equal keys always hash equal.
// For DateTimeOffset keys only the UTC portion is hashed, matching Compare
// and Equals, so that keys with the same UTC instant and different offsets
// also collide under Hash.
func (k Key) Hash() uint64 {
	raw := k.raw
	if k.kind == KindDateTimeOffset {
		raw = utcPrefix(raw)
	}
	h := fnvMix(fnvOffset, uint64(k.kind))
	if raw == nil {
		// Distinguished hash for positive infinity: mix in a marker byte
		// that cannot appear as a real length-prefix collision since raw
		// byte strings are hashed without a length prefix at all.
		return fnvMix(h, 0xFFFFFFFFFFFFFFFF)
	}
	for _, b := range raw {
		h ^= uint64(b)
		h *= fnvPrime
	}
	return h
}

const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
)

func fnvMix(h, v uint64) uint64 {
	h ^= v
	h *= fnvPrime
	return h
}

// Successor returns the next encodable key after k. Overflow (successor of
// the type's maximum representable finite value) returns the positive
// infinity sentinel. Successor(Max(kind)) returns Max(kind) unchanged.
//
// Successor(Min(kind)) also returns Max(kind): Min's raw encoding is the
// empty byte slice, so incrementBytes sees nothing to carry into and
// reports overflow immediately. This is never reached in practice --
// Min/Max are range endpoints, never point-mapping keys, and no range
// arithmetic calls Successor on an endpoint already known to be -infinity
// -- but a caller that did would skip every finite value, not land on the
// smallest one.
//
// For KindDateTimeOffset, successor increments only the UTC portion and
// preserves the offset component, per spec.
func (k Key) Successor() Key {
	if k.IsMax() {
		return k
	}
	if k.kind == KindDateTimeOffset {
		utc := k.raw[:8]
		incremented, overflow := incrementBytes(utc)
		if overflow {
			return Max(k.kind)
		}
		next := make([]byte, 16)
		copy(next, incremented)
		copy(next[8:], k.raw[8:])
		return Key{kind: k.kind, raw: next}
	}
	if k.kind == KindBinary {
		// Binary successor appends a single zero byte, which is always
		// strictly greater under the trailing-zero-trimmed ordering and is
		// the smallest such extension; overflow is only possible at the
		// length limit.
		if len(k.raw) >= MaxBinaryLength {
			return Max(k.kind)
		}
		next := make([]byte, len(k.raw)+1)
		copy(next, k.raw)
		return Key{kind: k.kind, raw: next}
	}
	incremented, overflow := incrementBytes(k.raw)
	if overflow {
		return Max(k.kind)
	}
	return Key{kind: k.kind, raw: incremented}
}

// incrementBytes treats raw as a big-endian unsigned integer (after the
// type-specific sign/offset normalization already applied) and adds one
// with carry. overflow is true if every byte was already 0xFF.
func incrementBytes(raw []byte) (result []byte, overflow bool) {
	out := make([]byte, len(raw))
	copy(out, raw)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xFF {
			out[i]++
			return out, false
		}
		out[i] = 0x00
	}
	return out, true
}

// normalizeInt64 big-endian encodes v into width bytes (4 for Int32, 8 for
// Int64/TimeSpan) and flips the sign bit so that lexicographic byte order
// matches signed numeric order.
func normalizeInt64(v int64, width int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	raw := buf[8-width:]
	out := make([]byte, width)
	copy(out, raw)
	out[0] ^= 0x80
	return out
}

func denormalizeInt64(raw []byte, width int) (int64, error) {
	if len(raw) != width {
		return 0, fmt.Errorf("shardkey: expected %d normalized bytes, got %d", width, len(raw))
	}
	buf := make([]byte, width)
	copy(buf, raw)
	buf[0] ^= 0x80
	full := make([]byte, 8)
	copy(full[8-width:], buf)
	return int64(binary.BigEndian.Uint64(full)), nil
}

// normalizeGUID reorders a standard UUID's bytes into server sort order.
func normalizeGUID(id uuid.UUID) []byte {
	out := make([]byte, 16)
	for i, src := range guidSortOrder {
		out[i] = id[src]
	}
	return out
}

func denormalizeGUID(raw []byte) (uuid.UUID, error) {
	if len(raw) != 16 {
		return uuid.UUID{}, fmt.Errorf("shardkey: expected 16 normalized GUID bytes, got %d", len(raw))
	}
	var out uuid.UUID
	for i, dst := range guidSortOrder {
		out[dst] = raw[i]
	}
	return out, nil
}

func trimTrailingZeros(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	out := make([]byte, end)
	copy(out, b[:end])
	return out
}

// ticksPerSecond matches .NET's DateTime/TimeSpan tick resolution (100ns
// ticks), which the GSM/LSM wire format uses for all timestamp encodings.
const ticksPerSecond = 10_000_000

// epoch is the .NET DateTime epoch (0001-01-01), used so that normalized
// ticks match what a non-Go client writing to the same GSM would produce.
var epoch = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)

func ticksSinceEpoch(t time.Time) int64 {
	return (t.Unix()-epoch.Unix())*ticksPerSecond + int64(t.Nanosecond())/100
}

func epochPlusTicks(ticks int64) time.Time {
	seconds := ticks / ticksPerSecond
	remainderTicks := ticks % ticksPerSecond
	return time.Unix(epoch.Unix()+seconds, remainderTicks*100).UTC()
}

func normalizeTicks(ticks int64) []byte {
	// DateTime ticks are always non-negative, but the encoding is shared
	// with the signed normalizer so a single denormalizeTicks can be used
	// for both KindDateTime and the UTC prefix of KindDateTimeOffset.
	return normalizeInt64(ticks, 8)
}

func denormalizeTicks(raw []byte) (int64, error) {
	return denormalizeInt64(raw, 8)
}

func normalizeDateTimeOffset(v DateTimeOffset) []byte {
	utc := normalizeTicks(ticksSinceEpoch(v.UTC.UTC()))
	offsetTicks := int64(v.OffsetMinutes) * 60 * ticksPerSecond
	offset := normalizeInt64(offsetTicks, 8)
	out := make([]byte, 16)
	copy(out, utc)
	copy(out[8:], offset)
	return out
}
