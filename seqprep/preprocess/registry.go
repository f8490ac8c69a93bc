package preprocess

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ZanzyTHEbar/seqprep/seqprep/dataset"
	"github.com/ZanzyTHEbar/seqprep/seqprep/params"
)

// Factory builds a transform, reading any unset configuration from the
// params registry. Construction fails when a required parameter is neither
// defaulted nor bound.
type Factory func() (Fn, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds a named transform factory. Later registrations win, so
// applications can override the built-ins.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[name] = f
}

// Resolve builds the named transform.
func Resolve(name string) (Fn, error) {
	regMu.RLock()
	f, ok := factories[name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown preprocessor %q (registered: %v)", name, Names())
	}
	return f()
}

// Names lists the registered transform names, sorted.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromParams resolves the list of transform names bound under key. An
// unbound key means no transforms.
func FromParams(key string) ([]Fn, error) {
	names, ok := params.Strings(key)
	if !ok {
		return nil, nil
	}
	fns := make([]Fn, 0, len(names))
	for _, name := range names {
		fn, err := Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", key, err)
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

func init() {
	Register("select_random_chunk", func() (Fn, error) {
		cfg := SelectRandomChunkConfig{}
		if err := cfg.applyParams(); err != nil {
			return nil, err
		}
		return func(s dataset.Stream) dataset.Stream { return SelectRandomChunk(s, cfg) }, nil
	})
	Register("reduce_concat_tokens", func() (Fn, error) {
		cfg := ReduceConcatTokensConfig{}
		if err := cfg.applyParams(); err != nil {
			return nil, err
		}
		return func(s dataset.Stream) dataset.Stream { return ReduceConcatTokens(s, cfg) }, nil
	})
	Register("split_tokens", func() (Fn, error) {
		cfg := SplitTokensConfig{}
		if err := cfg.applyParams(); err != nil {
			return nil, err
		}
		return func(s dataset.Stream) dataset.Stream { return SplitTokens(s, cfg) }, nil
	})
	Register("denoise", func() (Fn, error) {
		cfg := DenoiseConfig{}
		if err := cfg.applyParams(); err != nil {
			return nil, err
		}
		return func(s dataset.Stream) dataset.Stream { return Denoise(s, cfg) }, nil
	})
	Register("squad", func() (Fn, error) {
		cfg := SQuADConfig{}
		cfg.applyParams()
		return func(s dataset.Stream) dataset.Stream { return SQuAD(s, cfg) }, nil
	})
}
