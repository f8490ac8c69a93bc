package preprocess

import (
	"testing"

	"github.com/ZanzyTHEbar/seqprep/seqprep/dataset"
	"github.com/ZanzyTHEbar/seqprep/seqprep/params"
	"github.com/ZanzyTHEbar/seqprep/seqprep/tokenizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unigramModel = "testdata/sentencepiece.model"

func corpusStream(t *testing.T, split string) dataset.Stream {
	t.Helper()
	loader, err := dataset.NewLoader("testdata")
	require.NoError(t, err)
	s, err := loader.Load("c4", split)
	require.NoError(t, err)
	return s
}

func TestPlainBare(t *testing.T) {
	params.Reset()

	raw, ok := dataset.First(corpusStream(t, "train"))
	require.True(t, ok)
	text, ok := raw.Text("text")
	require.True(t, ok)
	require.NotEmpty(t, text)
	assert.False(t, raw.Has("targets"))

	tok, err := tokenizer.NewUnigram(unigramModel, 0)
	require.NoError(t, err)

	out, err := Plain(corpusStream(t, "train"), PlainConfig{Tok: tok})
	require.NoError(t, err)

	first, ok := dataset.First(out)
	require.True(t, ok)

	plain, ok := first.Text("targets_plaintext")
	require.True(t, ok)
	assert.Equal(t, text, plain, "plaintext copy carries the source text")

	targets, ok := first.Ints("targets")
	require.True(t, ok)
	assert.NotEmpty(t, targets)

	inputs, ok := first.Ints("inputs")
	require.True(t, ok, "language modeling still carries an inputs feature")
	assert.Empty(t, inputs)

	assert.False(t, first.Has("text"), "raw keys are rekeyed away")
	assert.False(t, first.Has("url"))
}

func TestPlainRequiresModelForUnigram(t *testing.T) {
	params.Reset()
	_, err := Plain(corpusStream(t, "train"), PlainConfig{Mode: tokenizer.ModeUnigram})
	require.ErrorIs(t, err, params.ErrMissingParam)
	assert.ErrorContains(t, err, "plain.model_path")
}

func TestCorpusCharModeFiltersLongDocuments(t *testing.T) {
	params.Reset()

	unfiltered, err := Corpus(corpusStream(t, "train"), CorpusConfig{MaxTargetLength: -1})
	require.NoError(t, err)
	all := dataset.Collect(unfiltered)
	require.Len(t, all, 4)

	filtered, err := Corpus(corpusStream(t, "train"), CorpusConfig{MaxTargetLength: 2048})
	require.NoError(t, err)
	kept := dataset.Collect(filtered)

	assert.Less(t, len(kept), len(all), "character lengths push some documents over the cap")
	assert.NotEmpty(t, kept)
	for _, ex := range kept {
		targets, ok := ex.Ints("targets")
		require.True(t, ok)
		assert.NotEmpty(t, targets)
		assert.LessOrEqual(t, len(targets), 2048)
		_, ok = ex.Text("text")
		assert.True(t, ok, "raw text stays alongside the tokens")
	}
}

func TestCorpusUnigramModeKeepsEverything(t *testing.T) {
	params.Reset()

	filtered, err := Corpus(corpusStream(t, "train"), CorpusConfig{
		MaxTargetLength: 2048,
		Tokenization:    tokenizer.ModeUnigram,
		ModelPath:       unigramModel,
	})
	require.NoError(t, err)
	kept := dataset.Collect(filtered)
	assert.Len(t, kept, 4, "subword lengths fit every document under the cap")
}

func TestCorpusUnigramShorterThanChar(t *testing.T) {
	params.Reset()

	charStream, err := Corpus(corpusStream(t, "train"), CorpusConfig{MaxTargetLength: -1})
	require.NoError(t, err)
	unigramStream, err := Corpus(corpusStream(t, "train"), CorpusConfig{
		MaxTargetLength: -1,
		Tokenization:    tokenizer.ModeUnigram,
		ModelPath:       unigramModel,
	})
	require.NoError(t, err)

	charLens := dataset.Collect(charStream)
	unigramLens := dataset.Collect(unigramStream)
	require.Equal(t, len(charLens), len(unigramLens))

	for i := range charLens {
		assert.LessOrEqual(t, unigramLens[i].Len("targets"), charLens[i].Len("targets"),
			"subword tokenization never produces more ids than characters")
	}
}

func TestCorpusParamsBindings(t *testing.T) {
	params.Reset()
	t.Cleanup(params.Reset)

	params.Bind("corpus.max_target_length", 2048)
	params.Bind("corpus.tokenization", tokenizer.ModeUnigram)
	params.Bind("corpus.model_path", unigramModel)

	out, err := Corpus(corpusStream(t, "train"), CorpusConfig{})
	require.NoError(t, err)
	assert.Len(t, dataset.Collect(out), 4)
}

func TestGenericTextWithSquad(t *testing.T) {
	params.Reset()

	loader, err := dataset.NewLoader("testdata")
	require.NoError(t, err)
	raw, err := loader.Load("squad", "train")
	require.NoError(t, err)

	tok, err := tokenizer.NewUnigram(unigramModel, 0)
	require.NoError(t, err)

	out, err := GenericText(raw, GenericTextConfig{
		Tok:               tok,
		TextPreprocessors: []string{"squad"},
		CopyPlaintext:     true,
		DebugPrint:        true,
		DebugPrintRate:    1.0,
	})
	require.NoError(t, err)

	examples := dataset.Collect(out)
	require.Len(t, examples, 3)
	for _, ex := range examples {
		inputs, ok := ex.Ints("inputs")
		require.True(t, ok)
		assert.NotEmpty(t, inputs)

		targets, ok := ex.Ints("targets")
		require.True(t, ok)
		assert.NotEmpty(t, targets)

		plain, ok := ex.Text("inputs_plaintext")
		require.True(t, ok)
		assert.Contains(t, plain, "question:")
		assert.Contains(t, plain, "context:")
	}
}

func TestGenericTextUnknownPreprocessor(t *testing.T) {
	params.Reset()

	tok, err := tokenizer.NewUnigram(unigramModel, 0)
	require.NoError(t, err)

	_, err = GenericText(corpusStream(t, "train"), GenericTextConfig{
		Tok:               tok,
		TextPreprocessors: []string{"not_a_preprocessor"},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "not_a_preprocessor")
}
