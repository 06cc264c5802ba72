package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorClockIncrement(t *testing.T) {
	t.Run("bumps own counter only", func(t *testing.T) {
		vc := VectorClock{"a": 2, "b": 5}
		out := vc.Increment("a")

		assert.Equal(t, uint64(3), out["a"])
		assert.Equal(t, uint64(5), out["b"])
		// Receiver untouched.
		assert.Equal(t, uint64(2), vc["a"])
	})

	t.Run("absent entry becomes one", func(t *testing.T) {
		out := VectorClock{"a": 1}.Increment("b")
		assert.Equal(t, uint64(1), out["b"])
		assert.Equal(t, uint64(1), out["a"])
	})

	t.Run("nil clock", func(t *testing.T) {
		var vc VectorClock
		out := vc.Increment("a")
		assert.Equal(t, uint64(1), out["a"])
	})
}

func TestVectorClockMerge(t *testing.T) {
	a := VectorClock{"x": 3, "y": 1}
	b := VectorClock{"y": 4, "z": 2}

	t.Run("pointwise max", func(t *testing.T) {
		m := a.Merge(b)
		assert.Equal(t, VectorClock{"x": 3, "y": 4, "z": 2}, m)
	})

	t.Run("commutative", func(t *testing.T) {
		assert.Equal(t, a.Merge(b), b.Merge(a))
	})

	t.Run("associative", func(t *testing.T) {
		c := VectorClock{"x": 9}
		assert.Equal(t, a.Merge(b).Merge(c), a.Merge(b.Merge(c)))
	})

	t.Run("idempotent", func(t *testing.T) {
		assert.Equal(t, a, a.Merge(a))
	})

	t.Run("empty clock is identity", func(t *testing.T) {
		assert.Equal(t, a, a.Merge(VectorClock{}))
		assert.Equal(t, a, VectorClock{}.Merge(a))
	})
}

func TestVectorClockCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b VectorClock
		want Relation
	}{
		{"equal identical", VectorClock{"a": 1, "b": 2}, VectorClock{"a": 1, "b": 2}, Equal},
		{"equal both empty", VectorClock{}, VectorClock{}, Equal},
		{"dominates strictly greater", VectorClock{"a": 2}, VectorClock{"a": 1}, Dominates},
		{"dominates superset", VectorClock{"a": 1, "b": 1}, VectorClock{"a": 1}, Dominates},
		{"dominated", VectorClock{"a": 1}, VectorClock{"a": 1, "b": 1}, Dominated},
		{"concurrent disjoint", VectorClock{"a": 1}, VectorClock{"b": 1}, Concurrent},
		{"concurrent crossed", VectorClock{"a": 2, "b": 1}, VectorClock{"a": 1, "b": 2}, Concurrent},
		{"missing treated as zero", VectorClock{"a": 1, "b": 0}, VectorClock{"a": 1}, Equal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
		})
	}

	t.Run("anti-symmetry", func(t *testing.T) {
		a := VectorClock{"a": 3, "b": 1}
		b := VectorClock{"a": 1, "b": 1}
		require.Equal(t, Dominates, a.Compare(b))
		require.Equal(t, Dominated, b.Compare(a))
	})

	t.Run("self comparison is equal", func(t *testing.T) {
		a := VectorClock{"a": 3, "b": 1}
		assert.Equal(t, Equal, a.Compare(a))
	})
}

func TestVectorClockSum(t *testing.T) {
	assert.Equal(t, uint64(0), VectorClock{}.Sum())
	assert.Equal(t, uint64(6), VectorClock{"a": 1, "b": 2, "c": 3}.Sum())
}

func TestVectorClockCanonical(t *testing.T) {
	t.Run("sorted and stable", func(t *testing.T) {
		vc := VectorClock{"b": 2, "a": 1}
		assert.Equal(t, "a=1,b=2", vc.Canonical())
	})

	t.Run("equal clocks share a canonical form", func(t *testing.T) {
		a := VectorClock{"a": 1, "b": 2}
		b := VectorClock{"b": 2, "a": 1, "c": 0}
		require.Equal(t, Equal, a.Compare(b))
		assert.Equal(t, a.Canonical(), b.Canonical())
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "", VectorClock{}.Canonical())
	})
}

func TestVectorClockCopy(t *testing.T) {
	vc := VectorClock{"a": 1}
	c := vc.Copy()
	c["a"] = 99
	assert.Equal(t, uint64(1), vc["a"])

	var nilClock VectorClock
	assert.Nil(t, nilClock.Copy())
}
