package preprocess

import (
	"testing"

	"github.com/ZanzyTHEbar/seqprep/seqprep/dataset"
	"github.com/ZanzyTHEbar/seqprep/seqprep/params"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUnknownName(t *testing.T) {
	params.Reset()
	_, err := Resolve("bogus")
	require.Error(t, err)
	assert.ErrorContains(t, err, `unknown preprocessor "bogus"`)
	assert.ErrorContains(t, err, "denoise", "the error lists what is registered")
}

func TestResolveReportsMissingParams(t *testing.T) {
	params.Reset()

	_, err := Resolve("denoise")
	require.ErrorIs(t, err, params.ErrMissingParam)
	assert.ErrorContains(t, err, "denoise.noise_density")

	_, err = Resolve("split_tokens")
	require.ErrorIs(t, err, params.ErrMissingParam)
	assert.ErrorContains(t, err, "split_tokens.max_tokens_per_segment")
}

func TestNamesContainsBuiltins(t *testing.T) {
	names := Names()
	assert.IsNonDecreasing(t, names)
	for _, want := range []string{"denoise", "reduce_concat_tokens", "select_random_chunk", "split_tokens", "squad"} {
		assert.Contains(t, names, want)
	}
}

func TestRegisterOverrides(t *testing.T) {
	Register("select_random_chunk_override_probe", func() (Fn, error) {
		return func(s dataset.Stream) dataset.Stream { return s }, nil
	})
	Register("select_random_chunk_override_probe", func() (Fn, error) {
		return func(dataset.Stream) dataset.Stream {
			return dataset.FromExamples(dataset.Example{"targets": []int64{42}})
		}, nil
	})

	fn, err := Resolve("select_random_chunk_override_probe")
	require.NoError(t, err)
	out := dataset.Collect(fn(dataset.FromExamples()))
	require.Len(t, out, 1)
	ids, _ := out[0].Ints("targets")
	assert.Equal(t, []int64{42}, ids)
}

func TestFromParams(t *testing.T) {
	params.Reset()
	t.Cleanup(params.Reset)

	fns, err := FromParams("plain.preprocessors")
	require.NoError(t, err)
	assert.Nil(t, fns, "unbound key means no transforms")

	params.Bind("plain.preprocessors", []string{"squad"})
	fns, err = FromParams("plain.preprocessors")
	require.NoError(t, err)
	assert.Len(t, fns, 1)

	params.Bind("plain.preprocessors", []string{"nonsense"})
	_, err = FromParams("plain.preprocessors")
	require.Error(t, err)
	assert.ErrorContains(t, err, "plain.preprocessors")
}
