// Package preprocess provides stateless stream transforms that turn raw text
// records into model-ready inputs/targets pairs: rekeying, tokenization,
// length filtering, span-corruption denoising objectives, and corpus
// statistics. Transforms either take explicit config structs or resolve by
// registered name, with unset config fields filled from the params registry.
package preprocess

import (
	"math/rand"

	"github.com/ZanzyTHEbar/seqprep/seqprep/dataset"
	"github.com/ZanzyTHEbar/seqprep/seqprep/tokenizer"
)

// Fn is a stream transform. Pipelines compose them left to right.
type Fn func(dataset.Stream) dataset.Stream

// Compose chains transforms into one; Compose() is the identity.
func Compose(fns ...Fn) Fn {
	return func(s dataset.Stream) dataset.Stream {
		for _, fn := range fns {
			s = fn(s)
		}
		return s
	}
}

// Rekey rebuilds each example with exactly the mapped keys: newKey takes the
// value of the named old key, or an empty string feature when the old name is
// "". Unmapped features are dropped.
func Rekey(s dataset.Stream, mapping map[string]string) dataset.Stream {
	return dataset.Map(s, func(ex dataset.Example) dataset.Example {
		out := make(dataset.Example, len(mapping))
		for newKey, oldKey := range mapping {
			if oldKey == "" {
				out[newKey] = ""
				continue
			}
			if v, ok := ex[oldKey]; ok {
				out[newKey] = v
			}
		}
		return out
	})
}

// TokenizeConfig controls TokenizeFeatures.
type TokenizeConfig struct {
	// Keys are the features to tokenize; string features only, others pass
	// through untouched.
	Keys []string
	// CopyPlaintext keeps the original text under "<key>_plaintext".
	CopyPlaintext bool
}

// TokenizeFeatures encodes the named string features to []int64 token ids.
func TokenizeFeatures(s dataset.Stream, tok tokenizer.Tokenizer, cfg TokenizeConfig) dataset.Stream {
	return dataset.Map(s, func(ex dataset.Example) dataset.Example {
		out := ex.Clone()
		for _, key := range cfg.Keys {
			text, ok := out.Text(key)
			if !ok {
				continue
			}
			if cfg.CopyPlaintext {
				out.SetText(key+"_plaintext", text)
			}
			ids := tok.Encode(text)
			if ids == nil {
				ids = []int64{}
			}
			out.SetInts(key, ids)
		}
		return out
	})
}

// FilterOnLen keeps an example iff every listed feature is no longer than its
// bound. Features missing from the example count as length zero.
func FilterOnLen(s dataset.Stream, maxLens map[string]int) dataset.Stream {
	return dataset.Filter(s, func(ex dataset.Example) bool {
		for key, bound := range maxLens {
			if ex.Len(key) > bound {
				return false
			}
		}
		return true
	})
}

// TruncateOnLen cuts each listed token feature down to its bound.
func TruncateOnLen(s dataset.Stream, maxLens map[string]int) dataset.Stream {
	return dataset.Map(s, func(ex dataset.Example) dataset.Example {
		out := ex.Clone()
		for key, bound := range maxLens {
			if ids, ok := out.Ints(key); ok && len(ids) > bound {
				out.SetInts(key, ids[:bound])
			}
		}
		return out
	})
}

// AppendEOS appends eosID to each listed token feature.
func AppendEOS(s dataset.Stream, keys []string, eosID int64) dataset.Stream {
	return dataset.Map(s, func(ex dataset.Example) dataset.Example {
		out := ex.Clone()
		for _, key := range keys {
			if ids, ok := out.Ints(key); ok {
				out.SetInts(key, append(ids, eosID))
			}
		}
		return out
	})
}

// Shuffle reorders the stream through a bounded buffer: each incoming example
// evicts a random buffered one. bufferSize <= 1 is a no-op.
func Shuffle(s dataset.Stream, bufferSize int, rng *rand.Rand) dataset.Stream {
	if bufferSize <= 1 {
		return s
	}
	return func(yield func(dataset.Example) bool) {
		r := rng
		if r == nil {
			r = rand.New(rand.NewSource(rand.Int63()))
		}
		buf := make([]dataset.Example, 0, bufferSize)
		stopped := false
		s(func(ex dataset.Example) bool {
			if len(buf) < bufferSize {
				buf = append(buf, ex)
				return true
			}
			i := r.Intn(len(buf))
			out := buf[i]
			buf[i] = ex
			if !yield(out) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return
		}
		r.Shuffle(len(buf), func(i, j int) { buf[i], buf[j] = buf[j], buf[i] })
		for _, ex := range buf {
			if !yield(ex) {
				return
			}
		}
	}
}
