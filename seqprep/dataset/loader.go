package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound indicates the named dataset has no shard files for the split.
var ErrNotFound = errors.New("seqprep: dataset not found")

// maxLineBytes bounds a single JSONL record; corpus documents run long.
const maxLineBytes = 4 * 1024 * 1024

// Loader reads named datasets from a data directory. Layout is
// <dataDir>/<name>/<split>.jsonl, or sharded <split>-NNNNN.jsonl files which
// are read in sorted order. Record order is file order; nothing shuffles
// unless asked to.
type Loader struct {
	dataDir string
}

// NewLoader validates the data directory and returns a Loader over it.
func NewLoader(dataDir string) (*Loader, error) {
	info, err := os.Stat(dataDir)
	if err != nil {
		return nil, fmt.Errorf("checking data dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data dir %s is not a directory", dataDir)
	}
	return &Loader{dataDir: dataDir}, nil
}

// Load returns a restartable Stream over the split's shards. Undecodable
// lines are logged and skipped; a missing dataset or split is an error.
func (l *Loader) Load(name, split string) (Stream, error) {
	shards, err := l.shards(name, split)
	if err != nil {
		return nil, err
	}
	return readJSONL(shards), nil
}

func (l *Loader) shards(name, split string) ([]string, error) {
	dir := filepath.Join(l.dataDir, name)

	var shards []string
	single := filepath.Join(dir, split+".jsonl")
	if _, err := os.Stat(single); err == nil {
		shards = append(shards, single)
	}
	matches, err := filepath.Glob(filepath.Join(dir, split+"-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("globbing shards: %w", err)
	}
	shards = append(shards, matches...)
	sort.Strings(shards)

	if len(shards) == 0 {
		return nil, fmt.Errorf("%w: %s/%s under %s", ErrNotFound, name, split, l.dataDir)
	}
	return shards, nil
}

// readJSONL streams every record of the given files in order.
func readJSONL(paths []string) Stream {
	return func(yield func(Example) bool) {
		for _, path := range paths {
			if !scanJSONLFile(path, yield) {
				return
			}
		}
	}
}

// scanJSONLFile yields each decodable line of one shard. Returns false when
// the consumer stopped the iteration.
func scanJSONLFile(path string, yield func(Example) bool) bool {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("opening shard", "path", path, "error", err)
		return true
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ex, err := DecodeExample([]byte(line))
		if err != nil {
			slog.Warn("skipping undecodable record", "path", path, "line", lineNo, "error", err)
			continue
		}
		if !yield(ex) {
			return false
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("reading shard", "path", path, "error", err)
	}
	return true
}

