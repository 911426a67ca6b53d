package shardkey

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFromValueRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		kind  Kind
		value any
	}{
		{"int32 positive", KindInt32, int32(42)},
		{"int32 negative", KindInt32, int32(-42)},
		{"int32 zero", KindInt32, int32(0)},
		{"int64 positive", KindInt64, int64(1 << 40)},
		{"int64 negative", KindInt64, int64(-(1 << 40))},
		{"guid", KindGUID, uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")},
		{"binary", KindBinary, []byte{1, 2, 3}},
		{"timespan positive", KindTimeSpan, 5 * time.Second},
		{"timespan negative", KindTimeSpan, -5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := FromValue(tt.kind, tt.value)
			if err != nil {
				t.Fatalf("FromValue: %v", err)
			}
			back, err := FromRaw(tt.kind, k.Raw())
			if err != nil {
				t.Fatalf("FromRaw: %v", err)
			}
			if !k.Equals(back) {
				t.Fatalf("round trip mismatch: %v vs %v", k, back)
			}

			switch tt.kind {
			case KindInt32:
				v, err := k.Int32()
				if err != nil || v != tt.value.(int32) {
					t.Fatalf("Int32() = %d, %v, want %d", v, err, tt.value)
				}
			case KindInt64:
				v, err := k.Int64()
				if err != nil || v != tt.value.(int64) {
					t.Fatalf("Int64() = %d, %v, want %d", v, err, tt.value)
				}
			case KindGUID:
				v, err := k.GUID()
				if err != nil || v != tt.value.(uuid.UUID) {
					t.Fatalf("GUID() = %v, %v, want %v", v, err, tt.value)
				}
			case KindTimeSpan:
				v, err := k.Duration()
				if err != nil || v != tt.value.(time.Duration) {
					t.Fatalf("Duration() = %v, %v, want %v", v, err, tt.value)
				}
			}
		})
	}
}

func TestCompareOrdersMatchNativeType(t *testing.T) {
	values := []int32{-100, -1, 0, 1, 100}
	keys := make([]Key, len(values))
	for i, v := range values {
		k, err := FromValue(KindInt32, v)
		if err != nil {
			t.Fatal(err)
		}
		keys[i] = k
	}
	for i := range keys {
		for j := range keys {
			cmp, err := keys[i].Compare(keys[j])
			if err != nil {
				t.Fatal(err)
			}
			want := 0
			if values[i] < values[j] {
				want = -1
			} else if values[i] > values[j] {
				want = 1
			}
			if sign(cmp) != want {
				t.Errorf("compare(%d,%d) = %d, want sign %d", values[i], values[j], cmp, want)
			}
		}
	}
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}

func TestMinMaxSentinels(t *testing.T) {
	min := Min(KindInt32)
	max := Max(KindInt32)

	if !min.IsMin() || min.IsMax() {
		t.Fatal("Min() should be IsMin and not IsMax")
	}
	if !max.IsMax() || max.IsMin() {
		t.Fatal("Max() should be IsMax and not IsMin")
	}
	cmp, err := min.Compare(max)
	if err != nil || cmp >= 0 {
		t.Fatalf("min should be < max, got cmp=%d err=%v", cmp, err)
	}
	if _, err := max.Int32(); err == nil {
		t.Fatal("expected error taking value of positive infinity")
	}
}

func TestExactlyOneOrderingHolds(t *testing.T) {
	a, _ := FromValue(KindInt64, int64(10))
	b, _ := FromValue(KindInt64, int64(20))

	lt, _ := a.Compare(b)
	gt, _ := b.Compare(a)
	eq := a.Equals(b)

	count := 0
	if lt < 0 {
		count++
	}
	if gt > 0 {
		count++
	}
	if eq {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one ordering relation to hold, got count=%d", count)
	}
}

func TestSuccessorIsGreaterAndOverflowSaturates(t *testing.T) {
	a, _ := FromValue(KindInt32, int32(41))
	succ := a.Successor()
	cmp, err := a.Compare(succ)
	if err != nil || cmp >= 0 {
		t.Fatalf("expected a < successor(a), cmp=%d err=%v", cmp, err)
	}

	maxVal, _ := FromValue(KindInt32, int32(1<<31-1))
	if !maxVal.Successor().IsMax() {
		t.Fatal("successor of the largest finite int32 should overflow to +infinity")
	}

	pinf := Max(KindInt32)
	if !pinf.Successor().IsMax() {
		t.Fatal("successor(max) must equal max")
	}
}

func TestBinaryKeyTrimsTrailingZerosAndEnforcesLimit(t *testing.T) {
	k, err := FromValue(KindBinary, []byte{1, 2, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := k.Binary()
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 2 {
		t.Fatalf("expected trailing zeros trimmed, got %v", raw)
	}

	tooLong := make([]byte, MaxBinaryLength+1)
	tooLong[MaxBinaryLength] = 1 // avoid trimming
	if _, err := FromRaw(KindBinary, tooLong); err == nil {
		t.Fatal("expected error for binary key exceeding length limit")
	}
}

func TestHashConsistentWithEquals(t *testing.T) {
	a, _ := FromValue(KindInt64, int64(12345))
	b, _ := FromValue(KindInt64, int64(12345))
	if !a.Equals(b) {
		t.Fatal("expected equal keys")
	}
	if a.Hash() != b.Hash() {
		t.Fatal("equal keys must hash equal")
	}
}

func TestDateTimeOffsetComparesUTCOnlyButHashMatchesIt(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a, err := FromValue(KindDateTimeOffset, DateTimeOffset{UTC: base, OffsetMinutes: 0})
	if err != nil {
		t.Fatal(err)
	}
	b, err := FromValue(KindDateTimeOffset, DateTimeOffset{UTC: base, OffsetMinutes: 120})
	if err != nil {
		t.Fatal(err)
	}

	cmp, err := DateTimeOffsetUTCOnly(a, b)
	if err != nil || cmp != 0 {
		t.Fatalf("expected UTC-only comparison to treat identical instants as equal, cmp=%d err=%v", cmp, err)
	}
	if a.Hash() != b.Hash() {
		t.Fatal("hash must be consistent with the UTC-only comparison, not the raw byte compare")
	}
}

func TestCompareDifferentKindsErrors(t *testing.T) {
	a, _ := FromValue(KindInt32, int32(1))
	b, _ := FromValue(KindInt64, int64(1))
	if _, err := a.Compare(b); err == nil {
		t.Fatal("expected error comparing keys of different kinds")
	}
}
