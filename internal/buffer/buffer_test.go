package buffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func pushN(r *Ring, n int, base time.Time) {
	for i := 0; i < n; i++ {
		r.Push(Sample{
			Timestamp:       base.Add(time.Duration(i) * time.Millisecond),
			RegisterAddress: uint8(i % 256),
			RawValue:        int32(i),
		})
	}
}

func TestRing_BoundsForAnyLength(t *testing.T) {
	base := time.Now()

	for _, n := range []int{0, 1, 255, 256, 300, 1000} {
		r := New()
		pushN(r, n, base)

		want := n
		if want > Capacity {
			want = Capacity
		}

		assert.Equal(t, want, r.Len())
		assert.Len(t, r.Snapshot(), want)
	}
}

func TestRing_OrderPreserved(t *testing.T) {
	base := time.Now()
	r := New()
	pushN(r, 10, base)

	snap := r.Snapshot()
	for i := 1; i < len(snap); i++ {
		assert.True(t, snap[i-1].Timestamp.Before(snap[i].Timestamp))
	}
}

func TestRing_WrapKeepsOnlyLastCapacity(t *testing.T) {
	base := time.Now()
	r := New()
	pushN(r, 300, base)

	snap := r.Snapshot()
	assert.Len(t, snap, Capacity)
	assert.Equal(t, int32(44), snap[0].RawValue)
	assert.Equal(t, int32(299), snap[len(snap)-1].RawValue)
}

func TestRing_Clear(t *testing.T) {
	r := New()
	pushN(r, 50, time.Now())
	r.Clear()

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot())
}
