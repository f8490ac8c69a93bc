package preprocess

import (
	"math"

	"github.com/RoaringBitmap/roaring"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	internal "github.com/ZanzyTHEbar/seqprep/seqprep"
	"github.com/ZanzyTHEbar/seqprep/seqprep/dataset"
)

// FeatureSummary aggregates sequence lengths observed for one feature.
type FeatureSummary struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    int
	Max    int
}

// Summary describes a materialized pass over a stream: per-feature length
// statistics plus the set of distinct token ids seen across the listed
// features.
type Summary struct {
	Examples int
	Features map[string]FeatureSummary

	tokens *roaring.Bitmap
}

// Summarize consumes the stream and gathers length statistics for the listed
// token features, tracking distinct ids in a roaring bitmap for coverage
// queries.
func Summarize(s dataset.Stream, keys ...string) Summary {
	lengths := make(map[string][]float64, len(keys))
	tokens := roaring.New()
	examples := 0

	for ex := range s {
		examples++
		for _, key := range keys {
			ids, ok := ex.Ints(key)
			if !ok {
				continue
			}
			lengths[key] = append(lengths[key], float64(len(ids)))
			for _, id := range ids {
				if id >= 0 && id <= math.MaxUint32 {
					tokens.Add(uint32(id))
				}
			}
		}
	}

	features := make(map[string]FeatureSummary, len(lengths))
	for key, ls := range lengths {
		fs := FeatureSummary{
			Count: len(ls),
			Mean:  stat.Mean(ls, nil),
			Min:   int(ls[0]),
			Max:   int(ls[0]),
		}
		if len(ls) > 1 {
			fs.StdDev = stat.StdDev(ls, nil)
		}
		for _, l := range ls {
			fs.Min = min(fs.Min, int(l))
			fs.Max = max(fs.Max, int(l))
		}
		features[key] = fs
	}
	return Summary{Examples: examples, Features: features, tokens: tokens}
}

// DistinctTokens is the number of distinct token ids observed.
func (s Summary) DistinctTokens() int {
	if s.tokens == nil {
		return 0
	}
	return int(s.tokens.GetCardinality())
}

// Coverage is the fraction of the vocabulary the stream actually used.
func (s Summary) Coverage(vocabSize int) float64 {
	if vocabSize <= 0 {
		return 0
	}
	return float64(s.DistinctTokens()) / float64(vocabSize)
}

// Log writes the summary through the shared structured logger.
func (s Summary) Log() {
	log := internal.GetLogger()
	ev := log.Info().Int("examples", s.Examples).Int("distinct_tokens", s.DistinctTokens())
	for key, fs := range s.Features {
		ev = ev.Dict(key, zerolog.Dict().
			Int("count", fs.Count).
			Float64("mean_len", fs.Mean).
			Float64("stddev_len", fs.StdDev).
			Int("min_len", fs.Min).
			Int("max_len", fs.Max))
	}
	ev.Msg("stream summary")
}
