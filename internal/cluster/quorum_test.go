package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RAAHUL-tech/mini-dynamo/internal/store"
)

func TestWriteQuorumMet(t *testing.T) {
	tests := []struct {
		name      string
		responses map[string]bool
		w         int
		want      bool
	}{
		{"all succeeded", map[string]bool{"a": true, "b": true, "c": true}, 2, true},
		{"exactly w", map[string]bool{"a": true, "b": true, "c": false}, 2, true},
		{"below w", map[string]bool{"a": true, "b": false, "c": false}, 2, false},
		{"empty responses", map[string]bool{}, 1, false},
		{"w of one", map[string]bool{"a": true}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WriteQuorumMet(tt.responses, tt.w))
		})
	}
}

func TestCollectReadQuorum(t *testing.T) {
	v1 := store.NewVersion([]byte(`"x"`), store.VectorClock{"a": 1})
	v2 := store.NewVersion([]byte(`"y"`), store.VectorClock{"b": 1})

	t.Run("flattens all responding versions", func(t *testing.T) {
		responses := map[string]ReadResponse{
			"a": {Versions: []store.Version{v1}, OK: true},
			"b": {Versions: []store.Version{v2}, OK: true},
		}
		versions, met := CollectReadQuorum(responses, 2)
		assert.True(t, met)
		assert.Len(t, versions, 2)
	})

	t.Run("empty list still counts as responding", func(t *testing.T) {
		responses := map[string]ReadResponse{
			"a": {Versions: nil, OK: true},
			"b": {Versions: nil, OK: true},
		}
		versions, met := CollectReadQuorum(responses, 2)
		assert.True(t, met)
		assert.Empty(t, versions)
	})

	t.Run("transport failures do not count", func(t *testing.T) {
		responses := map[string]ReadResponse{
			"a": {Versions: []store.Version{v1}, OK: true},
			"b": {OK: false},
			"c": {OK: false},
		}
		versions, met := CollectReadQuorum(responses, 2)
		assert.False(t, met)
		// Versions are still collected for read repair.
		require.Len(t, versions, 1)
	})
}

func TestQuorumAvailable(t *testing.T) {
	assert.True(t, QuorumAvailable(3, 1, 2))
	assert.False(t, QuorumAvailable(3, 2, 2))
	assert.True(t, QuorumAvailable(5, 0, 3))
}
