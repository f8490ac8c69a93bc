// Package tokenizer converts raw text to integer token-id sequences for
// sequence-to-sequence training pipelines. Three backends share one
// interface: a code-point tokenizer, a SentencePiece-compatible unigram
// model, and a WordPiece model built on sugarme/tokenizer.
package tokenizer

import (
	"fmt"
	"strings"
)

// Tokenizer converts text to model-ready token ids and back
type Tokenizer interface {
	Encode(text string) []int64
	Decode(ids []int64) string
	VocabSize() int
}

// Config holds basic tokenizer settings
type Config struct {
	// Mode selects the backend: "char", "unigram", or "wordpiece".
	Mode string
	// ModelPath locates the vocabulary model: a SentencePiece .model file
	// for unigram, a vocab.txt for wordpiece. Unused by char.
	ModelPath string
	// MaxSeqLen truncates encoded sequences when > 0.
	MaxSeqLen int
}

// Backend mode names accepted by New.
const (
	ModeChar      = "char"
	ModeUnigram   = "unigram"
	ModeWordPiece = "wordpiece"
)

// ErrUnsupported indicates the tokenizer could not be initialized
var ErrUnsupported = fmt.Errorf("unsupported tokenizer configuration")

// New selects a tokenizer backend by mode name. Unknown modes are an error
// rather than a silent fallback: the mode decides training-data semantics.
func New(cfg Config) (Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case ModeChar, "":
		return NewChar(cfg.MaxSeqLen), nil
	case ModeUnigram, "spm", "sentencepiece":
		return NewUnigram(cfg.ModelPath, cfg.MaxSeqLen)
	case ModeWordPiece, "bert":
		return NewWordPiece(cfg.ModelPath, cfg.MaxSeqLen)
	default:
		return nil, fmt.Errorf("%w: mode %q", ErrUnsupported, cfg.Mode)
	}
}

// Sentinel returns the id of the k-th sentinel token. Sentinels mark noised
// spans in denoising objectives and occupy the top of the id space, counting
// down: sentinel 0 is vocabSize-1.
func Sentinel(vocabSize, k int) int64 {
	return int64(vocabSize - 1 - k)
}
