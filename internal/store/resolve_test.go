package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func v(value string, clock VectorClock) Version {
	return NewVersion(json.RawMessage(value), clock)
}

func TestResolveDropsDominated(t *testing.T) {
	old := v(`"old"`, VectorClock{"a": 1})
	newer := v(`"new"`, VectorClock{"a": 2})

	out := Resolve([]Version{old, newer})
	require.Len(t, out, 1)
	assert.Equal(t, newer.VectorClock, out[0].VectorClock)
	assert.JSONEq(t, `"new"`, string(out[0].Value))
}

func TestResolveKeepsConcurrent(t *testing.T) {
	x := v(`"x"`, VectorClock{"a": 1})
	y := v(`"y"`, VectorClock{"b": 1})

	out := Resolve([]Version{x, y})
	assert.Len(t, out, 2)
}

func TestResolveCollapsesDuplicates(t *testing.T) {
	a := v(`"same"`, VectorClock{"a": 1})
	b := v(`"same"`, VectorClock{"a": 1})

	out := Resolve([]Version{a, b})
	assert.Len(t, out, 1)
}

func TestResolveKeepsEqualClocksWithDifferentValues(t *testing.T) {
	// Same clock, different payloads: the divergence is real and both must
	// survive for the client to see.
	a := v(`"one"`, VectorClock{"a": 1})
	b := v(`"two"`, VectorClock{"a": 1})

	out := Resolve([]Version{a, b})
	assert.Len(t, out, 2)
}

func TestResolveIdempotent(t *testing.T) {
	input := []Version{
		v(`"x"`, VectorClock{"a": 1}),
		v(`"y"`, VectorClock{"b": 1}),
		v(`"z"`, VectorClock{"a": 2, "b": 1}),
		v(`"x"`, VectorClock{"a": 1}),
	}

	once := Resolve(input)
	twice := Resolve(once)
	assert.Equal(t, once, twice)
}

func TestResolveSurvivorMaximality(t *testing.T) {
	input := []Version{
		v(`"a"`, VectorClock{"a": 1}),
		v(`"b"`, VectorClock{"a": 1, "b": 1}),
		v(`"c"`, VectorClock{"c": 5}),
		v(`"d"`, VectorClock{"a": 2, "b": 1}),
	}

	out := Resolve(input)
	for _, survivor := range out {
		for _, in := range input {
			assert.NotEqual(t, Dominated, survivor.VectorClock.Compare(in.VectorClock),
				"survivor %s dominated by input %s", survivor.VectorClock, in.VectorClock)
		}
	}
	// {a:2,b:1} dominates {a:1} and {a:1,b:1}; {c:5} is concurrent with it.
	require.Len(t, out, 2)
}

func TestResolveTombstonesFollowSameRules(t *testing.T) {
	live := v(`"x"`, VectorClock{"a": 1})
	tomb := NewTombstone(VectorClock{"a": 2})

	out := Resolve([]Version{live, tomb})
	require.Len(t, out, 1)
	assert.True(t, out[0].Deleted)
}

func TestResolveEmpty(t *testing.T) {
	assert.Empty(t, Resolve(nil))
}

func TestDeduplicatePreservesFirstOccurrenceOrder(t *testing.T) {
	a := v(`"a"`, VectorClock{"a": 1})
	b := v(`"b"`, VectorClock{"b": 1})

	out := Deduplicate([]Version{a, b, a, b, a})
	require.Len(t, out, 2)
	assert.JSONEq(t, `"a"`, string(out[0].Value))
	assert.JSONEq(t, `"b"`, string(out[1].Value))
}
