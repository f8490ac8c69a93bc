// Package pipeline assembles the end-to-end training-data flow: load a named
// dataset's train and eval splits, run the configured per-record and
// corpus-level preprocessors, rename the model features, and hand back
// streams ready for the batcher. Construction validates eagerly so a
// misconfigured pipeline fails at build time, not mid-training.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"

	assert "github.com/ZanzyTHEbar/assert-lib"

	internal "github.com/ZanzyTHEbar/seqprep/seqprep"
	"github.com/ZanzyTHEbar/seqprep/seqprep/cache"
	"github.com/ZanzyTHEbar/seqprep/seqprep/config"
	"github.com/ZanzyTHEbar/seqprep/seqprep/dataset"
	"github.com/ZanzyTHEbar/seqprep/seqprep/params"
	"github.com/ZanzyTHEbar/seqprep/seqprep/preprocess"
)

// StreamFn converts one example stream into another, failing on bad
// configuration.
type StreamFn func(dataset.Stream) (dataset.Stream, error)

// Config controls DataStreams. Zero fields fill from bound
// "data_streams.<field>" parameters.
type Config struct {
	// Dataset names the dataset directory under DataDir. Required.
	Dataset string
	// DataDir roots the dataset directories.
	DataDir string
	// InputName and TargetName pick which features feed the model as
	// "inputs" and "targets". Default "inputs" and "targets".
	InputName  string
	TargetName string
	// Bare runs per-record conversion right after loading, e.g.
	// preprocess.Plain or preprocess.GenericText. Unset falls back to the
	// "data_streams.bare_preprocess_fn" binding, resolved by name.
	Bare StreamFn
	// Preprocess runs corpus-level transforms after shuffling, e.g.
	// preprocess.Corpus. Unset falls back to "data_streams.preprocess_fn".
	Preprocess StreamFn
	// ShuffleBufferSize bounds the training-side shuffle buffer. Defaults
	// to 1024; values below 2 disable shuffling.
	ShuffleBufferSize int
	// Seed pins the shuffle order.
	Seed int64
	// Cache, when set, memoizes the bare-preprocessed stream per split.
	Cache *cache.Provider
}

func (c *Config) applyParams() error {
	if c.Dataset == "" {
		v, ok := params.String("data_streams.dataset")
		if !ok {
			return params.Missing("data_streams.dataset")
		}
		c.Dataset = v
	}
	if c.DataDir == "" {
		if v, ok := params.String("data_streams.data_dir"); ok {
			c.DataDir = v
		} else if config.AppConfig.Data.Dir != "" {
			c.DataDir = config.AppConfig.Data.Dir
		} else {
			c.DataDir = internal.DefaultDataDir
		}
	}
	if c.InputName == "" {
		if v, ok := params.String("data_streams.input_name"); ok {
			c.InputName = v
		} else {
			c.InputName = "inputs"
		}
	}
	if c.TargetName == "" {
		if v, ok := params.String("data_streams.target_name"); ok {
			c.TargetName = v
		} else {
			c.TargetName = "targets"
		}
	}
	if c.Bare == nil {
		if name, ok := params.String("data_streams.bare_preprocess_fn"); ok {
			fn, err := streamFnByName(name)
			if err != nil {
				return err
			}
			c.Bare = fn
		}
	}
	if c.Preprocess == nil {
		if name, ok := params.String("data_streams.preprocess_fn"); ok {
			fn, err := streamFnByName(name)
			if err != nil {
				return err
			}
			c.Preprocess = fn
		}
	}
	if c.ShuffleBufferSize == 0 {
		if v, ok := params.Int("data_streams.shuffle_buffer_size"); ok {
			c.ShuffleBufferSize = v
		} else if config.AppConfig.Data.ShuffleBufferSize > 0 {
			c.ShuffleBufferSize = config.AppConfig.Data.ShuffleBufferSize
		} else {
			c.ShuffleBufferSize = 1024
		}
	}
	if c.Seed == 0 {
		if v, ok := params.Int("data_streams.seed"); ok {
			c.Seed = int64(v)
		}
	}
	return nil
}

// streamFnByName maps bindable names to the pipeline-level stream functions.
func streamFnByName(name string) (StreamFn, error) {
	switch name {
	case "plain":
		return func(s dataset.Stream) (dataset.Stream, error) {
			return preprocess.Plain(s, preprocess.PlainConfig{})
		}, nil
	case "generic_text":
		return func(s dataset.Stream) (dataset.Stream, error) {
			return preprocess.GenericText(s, preprocess.GenericTextConfig{})
		}, nil
	case "corpus":
		return func(s dataset.Stream) (dataset.Stream, error) {
			return preprocess.Corpus(s, preprocess.CorpusConfig{})
		}, nil
	default:
		return nil, fmt.Errorf("unknown stream function %q", name)
	}
}

// Stats counts examples flowing through each split.
type Stats struct {
	TrainExamples atomic.Int64
	EvalExamples  atomic.Int64
}

// Log writes the current counters through the shared structured logger.
func (st *Stats) Log() {
	log := internal.GetLogger()
	log.Info().
		Int64("train_examples", st.TrainExamples.Load()).
		Int64("eval_examples", st.EvalExamples.Load()).
		Msg("data streams progress")
}

// Streams is a constructed pipeline. Train cycles its split forever with
// shuffling; Eval is a finite, restartable pass.
type Streams struct {
	Train dataset.Stream
	Eval  dataset.Stream
	Stats *Stats

	AssertHandler *assert.AssertHandler
}

// DataStreams builds the train and eval streams for a dataset:
// load -> bare preprocess -> cache -> (train only) shuffle -> preprocess ->
// rename to inputs/targets -> (train only) repeat.
func DataStreams(cfg Config) (*Streams, error) {
	if err := cfg.applyParams(); err != nil {
		return nil, fmt.Errorf("failed to configure data streams: %w", err)
	}

	loader, err := dataset.NewLoader(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	build := func(split string, training bool) (dataset.Stream, error) {
		s, err := loader.Load(cfg.Dataset, split)
		if err != nil {
			return nil, err
		}
		if cfg.Bare != nil {
			if s, err = cfg.Bare(s); err != nil {
				return nil, fmt.Errorf("failed to apply bare preprocessor: %w", err)
			}
		}
		if cfg.Cache != nil {
			s = cfg.Cache.Cached(cfg.Dataset+":"+split+":bare", s)
		}
		if training && cfg.ShuffleBufferSize > 1 {
			rng := rand.New(rand.NewSource(cfg.Seed))
			s = preprocess.Shuffle(s, cfg.ShuffleBufferSize, rng)
		}
		if cfg.Preprocess != nil {
			if s, err = cfg.Preprocess(s); err != nil {
				return nil, fmt.Errorf("failed to apply preprocessor: %w", err)
			}
		}
		s = renameFeatures(s, cfg.InputName, cfg.TargetName)
		counter := &stats.EvalExamples
		if training {
			counter = &stats.TrainExamples
		}
		s = counted(s, counter)
		if training {
			s = dataset.Repeat(s, 0)
		}
		return s, nil
	}

	train, err := build("train", true)
	if err != nil {
		return nil, err
	}
	eval, err := build("validation", false)
	if err != nil {
		return nil, err
	}

	handler := assert.NewAssertHandler()
	handler.Assert(context.Background(), train != nil && eval != nil,
		"constructed data streams must exist")

	return &Streams{Train: train, Eval: eval, Stats: stats, AssertHandler: handler}, nil
}

// renameFeatures copies the named features onto "inputs"/"targets", leaving
// the rest of the example in place. Names that already match are no-ops.
func renameFeatures(s dataset.Stream, inputName, targetName string) dataset.Stream {
	if inputName == "inputs" && targetName == "targets" {
		return s
	}
	return dataset.Map(s, func(ex dataset.Example) dataset.Example {
		out := ex.Clone()
		if v, ok := ex[inputName]; ok {
			out["inputs"] = v
		}
		if v, ok := ex[targetName]; ok {
			out["targets"] = v
		}
		return out
	})
}

func counted(s dataset.Stream, counter *atomic.Int64) dataset.Stream {
	return dataset.Map(s, func(ex dataset.Example) dataset.Example {
		counter.Add(1)
		return ex
	})
}
