package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsBackend(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want any
	}{
		{"char", Config{Mode: ModeChar}, &Char{}},
		{"default is char", Config{}, &Char{}},
		{"unigram", Config{Mode: ModeUnigram, ModelPath: "testdata/sentencepiece.model"}, &Unigram{}},
		{"unigram alias", Config{Mode: "SentencePiece", ModelPath: "testdata/sentencepiece.model"}, &Unigram{}},
		{"wordpiece", Config{Mode: ModeWordPiece, ModelPath: "testdata/vocab.txt"}, &WordPiece{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := New(tt.cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.want, tok)
		})
	}
}

func TestNewUnknownMode(t *testing.T) {
	_, err := New(Config{Mode: "bpe"})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSentinel(t *testing.T) {
	assert.Equal(t, int64(183), Sentinel(184, 0))
	assert.Equal(t, int64(182), Sentinel(184, 1))
	assert.Equal(t, int64(31999), Sentinel(32000, 0))
}

func TestBackendsAgreeOnInterface(t *testing.T) {
	for _, cfg := range []Config{
		{Mode: ModeChar},
		{Mode: ModeUnigram, ModelPath: "testdata/sentencepiece.model"},
		{Mode: ModeWordPiece, ModelPath: "testdata/vocab.txt"},
	} {
		tok, err := New(cfg)
		require.NoError(t, err)

		ids := tok.Encode("the river runs south")
		assert.NotEmpty(t, ids, "mode %s", cfg.Mode)
		assert.Positive(t, tok.VocabSize(), "mode %s", cfg.Mode)
		assert.NotEmpty(t, tok.Decode(ids), "mode %s", cfg.Mode)
	}
}
