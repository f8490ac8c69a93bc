package cache

import (
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/seqprep/seqprep/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(filepath.Join(t.TempDir(), "cache", "seqprep.db"))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func countedSource(n int, calls *int) dataset.Stream {
	return func(yield func(dataset.Example) bool) {
		*calls++
		for i := 0; i < n; i++ {
			if !yield(dataset.Example{"ord": []int64{int64(i)}, "text": "doc"}) {
				return
			}
		}
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	p := testProvider(t)

	in := []dataset.Example{
		{"inputs": []int64{5, 6}, "targets": []int64{7}, "targets_plaintext": "seven"},
		{"inputs": []int64{8}, "targets": []int64{9, 10}},
	}
	require.NoError(t, p.Put("train-v1", in))

	hit, err := p.Has("train-v1")
	require.NoError(t, err)
	assert.True(t, hit)

	out, err := p.Get("train-v1")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestHasMissingKey(t *testing.T) {
	p := testProvider(t)

	hit, err := p.Has("never-written")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestPutReplacesExisting(t *testing.T) {
	p := testProvider(t)

	require.NoError(t, p.Put("k", []dataset.Example{{"a": int64(1)}, {"a": int64(2)}}))
	require.NoError(t, p.Put("k", []dataset.Example{{"a": int64(3)}}))

	out, err := p.Get("k")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(3), out[0]["a"])
}

func TestDelete(t *testing.T) {
	p := testProvider(t)

	require.NoError(t, p.Put("k", []dataset.Example{{"a": int64(1)}}))
	require.NoError(t, p.Delete("k"))

	hit, err := p.Has("k")
	require.NoError(t, err)
	assert.False(t, hit)

	assert.NoError(t, p.Delete("k"), "deleting a missing key is not an error")
}

func TestCachedMissThenHit(t *testing.T) {
	p := testProvider(t)

	calls := 0
	cached := p.Cached("pipeline-key", countedSource(3, &calls))

	first := dataset.Collect(cached)
	require.Len(t, first, 3)
	assert.Equal(t, 1, calls)

	second := dataset.Collect(cached)
	require.Len(t, second, 3)
	assert.Equal(t, 1, calls, "second pass is served from the cache")
	assert.Equal(t, first, second)
}

func TestCachedEarlyBreakLeavesNoEntry(t *testing.T) {
	p := testProvider(t)

	calls := 0
	cached := p.Cached("partial", countedSource(5, &calls))

	got := dataset.Collect(dataset.Take(cached, 2))
	require.Len(t, got, 2)

	hit, err := p.Has("partial")
	require.NoError(t, err)
	assert.False(t, hit, "a stream the consumer abandoned must not be cached")

	full := dataset.Collect(cached)
	assert.Len(t, full, 5)
	assert.Equal(t, 2, calls, "source re-runs until a full drain lands")
}

func TestCachedServesClones(t *testing.T) {
	p := testProvider(t)

	calls := 0
	cached := p.Cached("clones", countedSource(1, &calls))
	dataset.Collect(cached)

	first := dataset.Collect(cached)
	require.Len(t, first, 1)
	ids, ok := first[0].Ints("ord")
	require.True(t, ok)
	ids[0] = 99

	second := dataset.Collect(cached)
	require.Len(t, second, 1)
	fresh, _ := second[0].Ints("ord")
	assert.Equal(t, []int64{0}, fresh, "consumers get isolated copies")
}
