package dataset

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/sourcegraph/conc/pool"

	internal "github.com/ZanzyTHEbar/seqprep/seqprep"
)

// ScanConfig controls raw-corpus ingestion.
type ScanConfig struct {
	// Workers bounds the concurrent shard readers. Zero picks a CPU-scaled
	// default.
	Workers int
	// IgnoreFile names an exclusion file (gitignore syntax) at the corpus
	// root. Defaults to the application ignore file name.
	IgnoreFile string
}

// ScanCorpus ingests a directory of raw text shards: every *.txt file yields
// one {"text": ...} example, every *.jsonl file yields one example per
// record. Shards are discovered eagerly (so layout problems surface here),
// excluded by the corpus ignore file when present, ordered by path, and read
// by a bounded worker pool on each pass over the stream.
func ScanCorpus(dir string, cfg ScanConfig) (Stream, error) {
	if cfg.Workers <= 0 {
		// I/O bound: CPU cores * 2, clamped for responsiveness on small
		// machines and against descriptor exhaustion on large ones.
		cfg.Workers = min(max(runtime.NumCPU()*2, 4), 32)
	}
	if cfg.IgnoreFile == "" {
		cfg.IgnoreFile = internal.DefaultIgnoreFile
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("checking corpus dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus path %s is not a directory", dir)
	}

	paths, err := corpusShards(dir, cfg.IgnoreFile)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s does not contain any .txt or .jsonl shards", dir)
	}

	return func(yield func(Example) bool) {
		p := pool.NewWithResults[[]Example]().WithMaxGoroutines(cfg.Workers)
		for _, path := range paths {
			p.Go(func() []Example {
				return readShard(path)
			})
		}
		// Results preserve submission order, so output order is path order
		// regardless of which reader finishes first.
		for _, shard := range p.Wait() {
			for _, ex := range shard {
				if !yield(ex) {
					return
				}
			}
		}
	}, nil
}

// corpusShards walks the corpus for text shards, applying the ignore file.
func corpusShards(dir, ignoreName string) ([]string, error) {
	var matcher *ignore.GitIgnore
	ignorePath := filepath.Join(dir, ignoreName)
	if _, err := os.Stat(ignorePath); err == nil {
		matcher, err = ignore.CompileIgnoreFile(ignorePath)
		if err != nil {
			return nil, fmt.Errorf("compiling %s: %w", ignorePath, err)
		}
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".jsonl" {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking corpus dir: %w", err)
	}

	sort.Strings(paths)
	return paths, nil
}

// readShard materializes one shard. Failures degrade to an empty shard with
// a log line so a bad file cannot sink the whole corpus pass.
func readShard(path string) []Example {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("reading corpus shard", "path", path, "error", err)
			return nil
		}
		text := strings.TrimRight(string(data), "\n")
		if text == "" {
			return nil
		}
		return []Example{{"text": text}}
	}

	var out []Example
	scanJSONLFile(path, func(ex Example) bool {
		out = append(out, ex)
		return true
	})
	return out
}
