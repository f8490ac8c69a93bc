package preprocess

import (
	"math/rand"

	internal "github.com/ZanzyTHEbar/seqprep/seqprep"
	"github.com/ZanzyTHEbar/seqprep/seqprep/dataset"
	"github.com/ZanzyTHEbar/seqprep/seqprep/params"
	"github.com/ZanzyTHEbar/seqprep/seqprep/tokenizer"
)

// PlainConfig controls Plain.
type PlainConfig struct {
	// Tok is the tokenizer; when nil one is built from Mode/ModelPath.
	Tok tokenizer.Tokenizer
	// Mode and ModelPath configure the tokenizer when Tok is nil. Mode
	// defaults to unigram.
	Mode      string
	ModelPath string
	// CopyPlaintext keeps "<key>_plaintext" copies of tokenized text.
	// Defaults to on, matching the raw-text provenance the objective tests
	// inspect.
	CopyPlaintext *bool
	// Preprocessors names the objective chain applied after tokenization,
	// resolved through the registry. Unset falls back to the bound
	// "plain.preprocessors" list; empty means none.
	Preprocessors []string
}

func (c *PlainConfig) applyParams() error {
	if c.Tok == nil {
		if c.Mode == "" {
			if v, ok := params.String("plain.mode"); ok {
				c.Mode = v
			} else {
				c.Mode = tokenizer.ModeUnigram
			}
		}
		if c.ModelPath == "" {
			if v, ok := params.String("plain.model_path"); ok {
				c.ModelPath = v
			} else if c.Mode != tokenizer.ModeChar {
				return params.Missing("plain.model_path")
			}
		}
		tok, err := tokenizer.New(tokenizer.Config{Mode: c.Mode, ModelPath: c.ModelPath})
		if err != nil {
			return err
		}
		c.Tok = tok
	}
	if c.CopyPlaintext == nil {
		v := true
		if bound, ok := params.Bool("plain.copy_plaintext"); ok {
			v = bound
		}
		c.CopyPlaintext = &v
	}
	return nil
}

// Plain is the bare corpus-to-training-example conversion: raw "text"
// becomes tokenized "targets" (with a plaintext copy), "inputs" exists but
// stays empty unless a configured objective chain fills it. With a denoising
// chain configured this is the full span-corruption pretraining pipeline.
func Plain(s dataset.Stream, cfg PlainConfig) (dataset.Stream, error) {
	if err := cfg.applyParams(); err != nil {
		return nil, err
	}

	out := Rekey(s, map[string]string{"targets": "text", "inputs": ""})
	out = TokenizeFeatures(out, cfg.Tok, TokenizeConfig{
		Keys:          []string{"targets", "inputs"},
		CopyPlaintext: *cfg.CopyPlaintext,
	})

	chain := cfg.Preprocessors
	if chain == nil {
		if bound, ok := params.Strings("plain.preprocessors"); ok {
			chain = bound
		}
	}
	for _, name := range chain {
		fn, err := Resolve(name)
		if err != nil {
			return nil, err
		}
		out = fn(out)
	}
	return out, nil
}

// CorpusConfig controls Corpus.
type CorpusConfig struct {
	// MaxTargetLength drops examples whose tokenized targets run longer.
	// Zero or negative disables the filter.
	MaxTargetLength int
	// Tokenization selects "char" (default) or "unigram".
	Tokenization string
	// ModelPath locates the unigram model.
	ModelPath string
}

func (c *CorpusConfig) applyParams() error {
	if c.MaxTargetLength == 0 {
		if v, ok := params.Int("corpus.max_target_length"); ok {
			c.MaxTargetLength = v
		}
	}
	if c.Tokenization == "" {
		if v, ok := params.String("corpus.tokenization"); ok {
			c.Tokenization = v
		} else {
			c.Tokenization = tokenizer.ModeChar
		}
	}
	if c.ModelPath == "" {
		if v, ok := params.String("corpus.model_path"); ok {
			c.ModelPath = v
		}
	}
	return nil
}

// Corpus tokenizes each example's "text" into "targets" with the selected
// tokenization mode and drops examples whose targets exceed MaxTargetLength.
// Character mode needs no model and keeps one id per rune, so the same
// corpus filters much harder than under a subword model.
func Corpus(s dataset.Stream, cfg CorpusConfig) (dataset.Stream, error) {
	if err := cfg.applyParams(); err != nil {
		return nil, err
	}
	tok, err := tokenizer.New(tokenizer.Config{Mode: cfg.Tokenization, ModelPath: cfg.ModelPath})
	if err != nil {
		return nil, err
	}

	out := dataset.Map(s, func(ex dataset.Example) dataset.Example {
		text, ok := ex.Text("text")
		if !ok {
			return ex
		}
		clone := ex.Clone()
		ids := tok.Encode(text)
		if ids == nil {
			ids = []int64{}
		}
		clone.SetInts("targets", ids)
		return clone
	})
	if cfg.MaxTargetLength > 0 {
		out = FilterOnLen(out, map[string]int{"targets": cfg.MaxTargetLength})
	}
	return out, nil
}

// GenericTextConfig controls GenericText.
type GenericTextConfig struct {
	// Tok, Mode, ModelPath select the tokenizer as in PlainConfig.
	Tok       tokenizer.Tokenizer
	Mode      string
	ModelPath string
	// TextPreprocessors are registry names applied to the raw text records
	// before tokenization (e.g. "squad").
	TextPreprocessors []string
	// TokenPreprocessors are registry names applied after tokenization.
	TokenPreprocessors []string
	// CopyPlaintext keeps "<key>_plaintext" copies.
	CopyPlaintext bool
	// DebugPrint logs a sampled fraction (DebugPrintRate) of processed
	// examples at debug level.
	DebugPrint     bool
	DebugPrintRate float64
	Rand           *rand.Rand
}

func (c *GenericTextConfig) applyParams() error {
	if c.Tok == nil {
		if c.Mode == "" {
			if v, ok := params.String("generic_text.mode"); ok {
				c.Mode = v
			} else {
				c.Mode = tokenizer.ModeUnigram
			}
		}
		if c.ModelPath == "" {
			if v, ok := params.String("generic_text.model_path"); ok {
				c.ModelPath = v
			} else if c.Mode != tokenizer.ModeChar {
				return params.Missing("generic_text.model_path")
			}
		}
		tok, err := tokenizer.New(tokenizer.Config{Mode: c.Mode, ModelPath: c.ModelPath})
		if err != nil {
			return err
		}
		c.Tok = tok
	}
	if c.TextPreprocessors == nil {
		if v, ok := params.Strings("generic_text.text_preprocessors"); ok {
			c.TextPreprocessors = v
		} else if v, ok := params.String("generic_text.text_preprocessor"); ok {
			c.TextPreprocessors = []string{v}
		}
	}
	if c.TokenPreprocessors == nil {
		if v, ok := params.Strings("generic_text.token_preprocessors"); ok {
			c.TokenPreprocessors = v
		}
	}
	if !c.CopyPlaintext {
		if v, ok := params.Bool("generic_text.copy_plaintext"); ok {
			c.CopyPlaintext = v
		}
	}
	if !c.DebugPrint {
		if v, ok := params.Bool("generic_text.debug_print"); ok {
			c.DebugPrint = v
		}
	}
	if c.DebugPrintRate == 0 {
		if v, ok := params.Float("generic_text.debug_print_rate"); ok {
			c.DebugPrintRate = v
		} else {
			c.DebugPrintRate = 0.01
		}
	}
	if c.Rand == nil {
		c.Rand = newRand("generic_text.seed")
	}
	return nil
}

// GenericText converts arbitrary text records into tokenized inputs/targets:
// text preprocessors shape the record (building "inputs" and "targets"
// strings), both keys are tokenized, then token preprocessors run. A sampled
// fraction of processed examples can be logged for debugging.
func GenericText(s dataset.Stream, cfg GenericTextConfig) (dataset.Stream, error) {
	if err := cfg.applyParams(); err != nil {
		return nil, err
	}

	out := s
	for _, name := range cfg.TextPreprocessors {
		fn, err := Resolve(name)
		if err != nil {
			return nil, err
		}
		out = fn(out)
	}
	out = TokenizeFeatures(out, cfg.Tok, TokenizeConfig{
		Keys:          []string{"inputs", "targets"},
		CopyPlaintext: cfg.CopyPlaintext,
	})
	if cfg.DebugPrint {
		out = debugPrint(out, cfg.DebugPrintRate, cfg.Rand)
	}
	for _, name := range cfg.TokenPreprocessors {
		fn, err := Resolve(name)
		if err != nil {
			return nil, err
		}
		out = fn(out)
	}
	return out, nil
}

func debugPrint(s dataset.Stream, rate float64, rng *rand.Rand) dataset.Stream {
	log := internal.GetLogger()
	return dataset.Map(s, func(ex dataset.Example) dataset.Example {
		if rng.Float64() >= rate {
			return ex
		}
		ev := log.Debug()
		if inputs, ok := ex.Ints("inputs"); ok {
			ev = ev.Int("inputs_len", len(inputs))
		}
		if targets, ok := ex.Ints("targets"); ok {
			ev = ev.Int("targets_len", len(targets))
		}
		if text, ok := ex.Text("inputs_plaintext"); ok {
			ev = ev.Str("inputs_plaintext", text)
		}
		if text, ok := ex.Text("targets_plaintext"); ok {
			ev = ev.Str("targets_plaintext", text)
		}
		ev.Msg("processed example")
		return ex
	})
}
