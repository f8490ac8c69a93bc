package preprocess

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/ZanzyTHEbar/seqprep/seqprep/dataset"
	"github.com/ZanzyTHEbar/seqprep/seqprep/params"
	"github.com/ZanzyTHEbar/seqprep/seqprep/tokenizer"
)

// SelectRandomChunkConfig controls SelectRandomChunk.
type SelectRandomChunkConfig struct {
	// FeatureKey names the token feature to chunk. Defaults to "targets".
	FeatureKey string
	// MaxLength bounds the chunk. Defaults to 65536.
	MaxLength int
	Rand      *rand.Rand
}

func (c *SelectRandomChunkConfig) applyParams() error {
	if c.FeatureKey == "" {
		if v, ok := params.String("select_random_chunk.feature_key"); ok {
			c.FeatureKey = v
		} else {
			c.FeatureKey = "targets"
		}
	}
	if c.MaxLength == 0 {
		if v, ok := params.Int("select_random_chunk.max_length"); ok {
			c.MaxLength = v
		} else {
			c.MaxLength = 65536
		}
	}
	if c.MaxLength <= 0 {
		return fmt.Errorf("select_random_chunk.max_length must be positive, got %d", c.MaxLength)
	}
	if c.Rand == nil {
		c.Rand = newRand("select_random_chunk.seed")
	}
	return nil
}

// SelectRandomChunk replaces long token sequences with one randomly chosen
// MaxLength-aligned window. Sequences at or under MaxLength pass unchanged.
func SelectRandomChunk(s dataset.Stream, cfg SelectRandomChunkConfig) dataset.Stream {
	if err := cfg.applyParams(); err != nil {
		slog.Error("select_random_chunk misconfigured, passing through", "error", err)
		return s
	}
	return dataset.Map(s, func(ex dataset.Example) dataset.Example {
		ids, ok := ex.Ints(cfg.FeatureKey)
		if !ok || len(ids) <= cfg.MaxLength {
			return ex
		}
		out := ex.Clone()
		segments := (len(ids) + cfg.MaxLength - 1) / cfg.MaxLength
		start := cfg.MaxLength * cfg.Rand.Intn(segments)
		end := min(start+cfg.MaxLength, len(ids))
		out.SetInts(cfg.FeatureKey, append([]int64(nil), ids[start:end]...))
		return out
	})
}

// ReduceConcatTokensConfig controls ReduceConcatTokens.
type ReduceConcatTokensConfig struct {
	// FeatureKey names the token feature to concatenate. Defaults to
	// "targets".
	FeatureKey string
	// BatchSize is how many consecutive sequences merge into one. Defaults
	// to 128.
	BatchSize int
}

func (c *ReduceConcatTokensConfig) applyParams() error {
	if c.FeatureKey == "" {
		if v, ok := params.String("reduce_concat_tokens.feature_key"); ok {
			c.FeatureKey = v
		} else {
			c.FeatureKey = "targets"
		}
	}
	if c.BatchSize == 0 {
		if v, ok := params.Int("reduce_concat_tokens.batch_size"); ok {
			c.BatchSize = v
		} else {
			c.BatchSize = 128
		}
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("reduce_concat_tokens.batch_size must be positive, got %d", c.BatchSize)
	}
	return nil
}

// ReduceConcatTokens concatenates runs of BatchSize consecutive sequences
// into single examples, cutting down on padding waste downstream. Only the
// token feature survives; a trailing partial run is still emitted.
func ReduceConcatTokens(s dataset.Stream, cfg ReduceConcatTokensConfig) dataset.Stream {
	if err := cfg.applyParams(); err != nil {
		slog.Error("reduce_concat_tokens misconfigured, passing through", "error", err)
		return s
	}
	return func(yield func(dataset.Example) bool) {
		var pending []int64
		n := 0
		stopped := false
		s(func(ex dataset.Example) bool {
			ids, ok := ex.Ints(cfg.FeatureKey)
			if !ok {
				return true
			}
			pending = append(pending, ids...)
			n++
			if n < cfg.BatchSize {
				return true
			}
			out := dataset.Example{cfg.FeatureKey: pending}
			pending, n = nil, 0
			if !yield(out) {
				stopped = true
				return false
			}
			return true
		})
		if stopped || len(pending) == 0 {
			return
		}
		yield(dataset.Example{cfg.FeatureKey: pending})
	}
}

// SplitTokensConfig controls SplitTokens.
type SplitTokensConfig struct {
	// FeatureKey names the token feature to split. Defaults to "targets".
	FeatureKey string
	// MaxTokensPerSegment is the segment width. Required.
	MaxTokensPerSegment int
}

func (c *SplitTokensConfig) applyParams() error {
	if c.FeatureKey == "" {
		if v, ok := params.String("split_tokens.feature_key"); ok {
			c.FeatureKey = v
		} else {
			c.FeatureKey = "targets"
		}
	}
	if c.MaxTokensPerSegment == 0 {
		if v, ok := params.Int("split_tokens.max_tokens_per_segment"); ok {
			c.MaxTokensPerSegment = v
		} else {
			return params.Missing("split_tokens.max_tokens_per_segment")
		}
	}
	if c.MaxTokensPerSegment <= 0 {
		return fmt.Errorf("split_tokens.max_tokens_per_segment must be positive, got %d", c.MaxTokensPerSegment)
	}
	return nil
}

// SplitTokens cuts each sequence into consecutive segments of at most
// MaxTokensPerSegment tokens, each yielded as its own example. The remainder
// stays as a shorter final segment; empty sequences yield nothing.
func SplitTokens(s dataset.Stream, cfg SplitTokensConfig) dataset.Stream {
	if err := cfg.applyParams(); err != nil {
		slog.Error("split_tokens misconfigured, passing through", "error", err)
		return s
	}
	return dataset.FlatMap(s, func(ex dataset.Example) []dataset.Example {
		ids, ok := ex.Ints(cfg.FeatureKey)
		if !ok || len(ids) == 0 {
			return nil
		}
		var out []dataset.Example
		for start := 0; start < len(ids); start += cfg.MaxTokensPerSegment {
			end := min(start+cfg.MaxTokensPerSegment, len(ids))
			segment := append([]int64(nil), ids[start:end]...)
			out = append(out, dataset.Example{cfg.FeatureKey: segment})
		}
		return out
	})
}

// SpanFn rewrites a token sequence under a noise mask. The vocabulary size
// anchors sentinel ids at the top of the id space.
type SpanFn func(tokens []int64, mask []bool, vocabSize int) []int64

// NoiseSpanToUniqueSentinel replaces each noise span with a fresh sentinel
// id, counting down from the top of the vocabulary, and keeps non-noise
// tokens as they are.
func NoiseSpanToUniqueSentinel(tokens []int64, mask []bool, vocabSize int) []int64 {
	out := make([]int64, 0, len(tokens))
	span := 0
	prev := false
	for i, tok := range tokens {
		noise := i < len(mask) && mask[i]
		switch {
		case noise && !prev:
			out = append(out, tokenizer.Sentinel(vocabSize, span))
			span++
		case noise && prev:
			// swallowed by the span's sentinel
		default:
			out = append(out, tok)
		}
		prev = noise
	}
	return out
}

// NonnoiseSpanToUniqueSentinel is the complement: non-noise spans collapse to
// sentinels and noise tokens stay, producing the reconstruction target.
func NonnoiseSpanToUniqueSentinel(tokens []int64, mask []bool, vocabSize int) []int64 {
	return NoiseSpanToUniqueSentinel(tokens, invertMask(mask, len(tokens)), vocabSize)
}

// DropNoiseTokens deletes noised positions outright.
func DropNoiseTokens(tokens []int64, mask []bool, _ int) []int64 {
	out := make([]int64, 0, len(tokens))
	for i, tok := range tokens {
		if i < len(mask) && mask[i] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// DropNonnoiseTokens keeps only the noised positions.
func DropNonnoiseTokens(tokens []int64, mask []bool, vocabSize int) []int64 {
	return DropNoiseTokens(tokens, invertMask(mask, len(tokens)), vocabSize)
}

func invertMask(mask []bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = i >= len(mask) || !mask[i]
	}
	return out
}

// spanFnByName maps registry-bindable names to span functions.
func spanFnByName(name string) (SpanFn, error) {
	switch name {
	case "noise_span_to_unique_sentinel":
		return NoiseSpanToUniqueSentinel, nil
	case "nonnoise_span_to_unique_sentinel":
		return NonnoiseSpanToUniqueSentinel, nil
	case "drop_noise_tokens":
		return DropNoiseTokens, nil
	case "drop_nonnoise_tokens":
		return DropNonnoiseTokens, nil
	default:
		return nil, fmt.Errorf("unknown span function %q", name)
	}
}

// RandomSpansNoiseMask draws a boolean noise mask over length positions:
// round(length*density) noise positions spread over round(noise/meanSpan)
// spans, alternating non-noise/noise so position zero is never noise.
// Lengths under two cannot host a span and come back all false.
func RandomSpansNoiseMask(length int, noiseDensity, meanNoiseSpanLength float64, rng *rand.Rand) []bool {
	mask := make([]bool, max(length, 0))
	if length < 2 {
		return mask
	}
	numNoise := int(math.Round(float64(length) * noiseDensity))
	numNoise = min(max(numNoise, 1), length-1)
	numSpans := max(int(math.Round(float64(numNoise)/meanNoiseSpanLength)), 1)
	numNonnoise := length - numNoise
	numSpans = min(numSpans, numNoise, numNonnoise)

	noiseLens := randomSegmentation(numNoise, numSpans, rng)
	nonnoiseLens := randomSegmentation(numNonnoise, numSpans, rng)

	pos := 0
	for i := 0; i < numSpans; i++ {
		pos += nonnoiseLens[i]
		for j := 0; j < noiseLens[i] && pos < length; j++ {
			mask[pos] = true
			pos++
		}
	}
	return mask
}

// IIDNoiseMask flips each position independently with probability density.
func IIDNoiseMask(length int, noiseDensity float64, rng *rand.Rand) []bool {
	mask := make([]bool, max(length, 0))
	for i := range mask {
		mask[i] = rng.Float64() < noiseDensity
	}
	return mask
}

// randomSegmentation partitions numItems into numSegments non-empty spans of
// random lengths. Assumes 1 <= numSegments <= numItems.
func randomSegmentation(numItems, numSegments int, rng *rand.Rand) []int {
	breaks := make([]bool, numItems-1)
	for i := 0; i < numSegments-1; i++ {
		breaks[i] = true
	}
	rng.Shuffle(len(breaks), func(i, j int) { breaks[i], breaks[j] = breaks[j], breaks[i] })

	lens := make([]int, 0, numSegments)
	cur := 1
	for _, brk := range breaks {
		if brk {
			lens = append(lens, cur)
			cur = 1
			continue
		}
		cur++
	}
	return append(lens, cur)
}

// DenoiseConfig controls Denoise.
type DenoiseConfig struct {
	// NoiseDensity is the target fraction of noised positions. Required.
	NoiseDensity float64
	// MeanNoiseSpanLength sets the average noise span width. Defaults to 3.
	MeanNoiseSpanLength float64
	// VocabSize anchors sentinel ids. Required.
	VocabSize int
	// NoiseMask selects the mask: "random_spans" (default) or "iid".
	NoiseMask string
	// InputsFn builds inputs from the masked sequence. Defaults to
	// NoiseSpanToUniqueSentinel. Bindable by name.
	InputsFn SpanFn
	// TargetsFn builds targets. Nil keeps the raw sequence. Bindable by name.
	TargetsFn SpanFn
	Rand      *rand.Rand
}

func (c *DenoiseConfig) applyParams() error {
	if c.NoiseDensity == 0 {
		v, ok := params.Float("denoise.noise_density")
		if !ok {
			return params.Missing("denoise.noise_density")
		}
		c.NoiseDensity = v
	}
	if c.NoiseDensity <= 0 || c.NoiseDensity >= 1 {
		return fmt.Errorf("denoise.noise_density must be in (0, 1), got %v", c.NoiseDensity)
	}
	if c.MeanNoiseSpanLength == 0 {
		if v, ok := params.Float("denoise.mean_noise_span_length"); ok {
			c.MeanNoiseSpanLength = v
		} else {
			c.MeanNoiseSpanLength = 3.0
		}
	}
	if c.VocabSize == 0 {
		v, ok := params.Int("denoise.vocab_size")
		if !ok {
			return params.Missing("denoise.vocab_size")
		}
		c.VocabSize = v
	}
	if c.VocabSize <= 0 {
		return fmt.Errorf("denoise.vocab_size must be positive, got %d", c.VocabSize)
	}
	if c.NoiseMask == "" {
		if v, ok := params.String("denoise.noise_mask"); ok {
			c.NoiseMask = v
		} else {
			c.NoiseMask = "random_spans"
		}
	}
	if c.NoiseMask != "random_spans" && c.NoiseMask != "iid" {
		return fmt.Errorf("unknown noise mask %q", c.NoiseMask)
	}
	if c.InputsFn == nil {
		name := "noise_span_to_unique_sentinel"
		if v, ok := params.String("denoise.inputs_fn"); ok {
			name = v
		}
		fn, err := spanFnByName(name)
		if err != nil {
			return err
		}
		c.InputsFn = fn
	}
	if c.TargetsFn == nil {
		if v, ok := params.String("denoise.targets_fn"); ok {
			fn, err := spanFnByName(v)
			if err != nil {
				return err
			}
			c.TargetsFn = fn
		}
	}
	if c.Rand == nil {
		c.Rand = newRand("denoise.seed")
	}
	return nil
}

// Denoise applies a span-corruption objective to each example's "targets"
// sequence: a noise mask splits it into kept and masked material, InputsFn
// renders the corrupted inputs and TargetsFn the reconstruction targets.
func Denoise(s dataset.Stream, cfg DenoiseConfig) dataset.Stream {
	if err := cfg.applyParams(); err != nil {
		slog.Error("denoise misconfigured, passing through", "error", err)
		return s
	}
	return dataset.Map(s, func(ex dataset.Example) dataset.Example {
		tokens, ok := ex.Ints("targets")
		if !ok {
			return ex
		}
		var mask []bool
		switch cfg.NoiseMask {
		case "iid":
			mask = IIDNoiseMask(len(tokens), cfg.NoiseDensity, cfg.Rand)
		default:
			mask = RandomSpansNoiseMask(len(tokens), cfg.NoiseDensity, cfg.MeanNoiseSpanLength, cfg.Rand)
		}
		out := dataset.Example{
			"inputs": cfg.InputsFn(tokens, mask, cfg.VocabSize),
		}
		if cfg.TargetsFn != nil {
			out["targets"] = cfg.TargetsFn(tokens, mask, cfg.VocabSize)
		} else {
			out["targets"] = append([]int64(nil), tokens...)
		}
		return out
	})
}

// SpanCorruptionConfig parameterizes SpanCorruptionLengths.
type SpanCorruptionConfig struct {
	// InputsLength is the packed model input length to fit. Required.
	InputsLength int
	// NoiseDensity is the corruption fraction. Required.
	NoiseDensity float64
	// MeanNoiseSpanLength is the average noise span width. Required.
	MeanNoiseSpanLength float64
	// ExtraTokensPerSpanInputs counts sentinel overhead per span on the
	// inputs side. Defaults to 1.
	ExtraTokensPerSpanInputs int
	// ExtraTokensPerSpanTargets is the targets-side counterpart. Defaults
	// to 1.
	ExtraTokensPerSpanTargets int
}

func (c *SpanCorruptionConfig) applyParams() error {
	if c.InputsLength == 0 {
		v, ok := params.Int("span_corruption.inputs_length")
		if !ok {
			return params.Missing("span_corruption.inputs_length")
		}
		c.InputsLength = v
	}
	if c.NoiseDensity == 0 {
		v, ok := params.Float("span_corruption.noise_density")
		if !ok {
			return params.Missing("span_corruption.noise_density")
		}
		c.NoiseDensity = v
	}
	if c.MeanNoiseSpanLength == 0 {
		v, ok := params.Float("span_corruption.mean_noise_span_length")
		if !ok {
			return params.Missing("span_corruption.mean_noise_span_length")
		}
		c.MeanNoiseSpanLength = v
	}
	if c.ExtraTokensPerSpanInputs == 0 {
		if v, ok := params.Int("span_corruption.extra_tokens_per_span_inputs"); ok {
			c.ExtraTokensPerSpanInputs = v
		} else {
			c.ExtraTokensPerSpanInputs = 1
		}
	}
	if c.ExtraTokensPerSpanTargets == 0 {
		if v, ok := params.Int("span_corruption.extra_tokens_per_span_targets"); ok {
			c.ExtraTokensPerSpanTargets = v
		} else {
			c.ExtraTokensPerSpanTargets = 1
		}
	}
	if c.InputsLength <= 1 {
		return fmt.Errorf("span_corruption.inputs_length must exceed 1, got %d", c.InputsLength)
	}
	return nil
}

// SpanLengths is the output of SpanCorruptionLengths.
type SpanLengths struct {
	// TokensLength is the raw segment width to feed SplitTokens.
	TokensLength int
	// InputsLength is the corrupted inputs length that raw width produces,
	// including one trailing EOS.
	InputsLength int
	// TargetsLength is the matching reconstruction target length.
	TargetsLength int
}

// SpanCorruptionLengths computes the largest raw token-segment width whose
// corrupted form still fits the configured inputs length, plus the resulting
// packed lengths. Feed TokensLength to SplitTokens ahead of Denoise.
func SpanCorruptionLengths(cfg SpanCorruptionConfig) (SpanLengths, error) {
	if err := cfg.applyParams(); err != nil {
		return SpanLengths{}, err
	}

	packed := func(tokens int) (int, int) {
		numNoise := int(math.Round(float64(tokens) * cfg.NoiseDensity))
		numNonnoise := tokens - numNoise
		numSpans := int(math.Round(float64(numNoise) / cfg.MeanNoiseSpanLength))
		return numNonnoise + numSpans*cfg.ExtraTokensPerSpanInputs + 1,
			numNoise + numSpans*cfg.ExtraTokensPerSpanTargets + 1
	}

	tokens := cfg.InputsLength
	for {
		in, _ := packed(tokens + 1)
		if in > cfg.InputsLength {
			break
		}
		tokens++
	}
	in, tgt := packed(tokens)
	if cfg.NoiseDensity == 0.5 && tgt > in {
		tokens--
		tgt--
	}
	return SpanLengths{TokensLength: tokens, InputsLength: in, TargetsLength: tgt}, nil
}

// newRand builds the operation rng, honoring a bound integer seed so tests
// and reruns can pin the randomness.
func newRand(seedKey string) *rand.Rand {
	if seed, ok := params.Int(seedKey); ok {
		return rand.New(rand.NewSource(int64(seed)))
	}
	return rand.New(rand.NewSource(rand.Int63()))
}
