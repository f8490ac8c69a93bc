// Package batcher turns example streams into padded, bucket-by-length token
// batches sized for a device count. Buckets pair ascending length boundaries
// with batch sizes so short sequences travel in large batches and long ones in
// small batches; a final overflow bucket catches whatever clears the last
// boundary. Emitted batch leading dimensions are always divisible by the
// device count.
package batcher

import (
	"fmt"
	"iter"
	"log/slog"
	"sort"

	"github.com/ZanzyTHEbar/seqprep/seqprep/dataset"
	"github.com/ZanzyTHEbar/seqprep/seqprep/params"
)

// Buckets pairs length boundaries with batch sizes. BatchSizes carries one
// entry per boundary plus a final size for the overflow bucket, so
// len(BatchSizes) == len(Boundaries)+1.
type Buckets struct {
	// Boundaries are inclusive length caps in ascending order.
	Boundaries []int
	// BatchSizes are the per-bucket batch sizes before device scaling.
	BatchSizes []int
}

// Config controls a Batcher. Zero fields fill from bound
// "batcher.<field>" parameters, then fall back to defaults.
type Config struct {
	// BatchSizePerDevice sizes training batches; the effective batch size is
	// BatchSizePerDevice * nDevices. Defaults to 32.
	BatchSizePerDevice int
	// EvalBatchSize sizes evaluation batches the same way. Defaults to 32.
	EvalBatchSize int
	// BucketLength anchors the derived bucket ladder when Buckets is unset.
	// Defaults to 32.
	BucketLength int
	// MaxEvalLength caps the derived evaluation bucket ladder. Defaults to
	// BucketLength * 32.
	MaxEvalLength int
	// Buckets overrides the derived ladder for both training and evaluation.
	Buckets *Buckets
	// PadID fills sequences up to the bucket width. Defaults to 0.
	PadID int64
}

func (c *Config) applyParams() error {
	if c.BatchSizePerDevice == 0 {
		if v, ok := params.Int("batcher.batch_size_per_device"); ok {
			c.BatchSizePerDevice = v
		} else {
			c.BatchSizePerDevice = 32
		}
	}
	if c.EvalBatchSize == 0 {
		if v, ok := params.Int("batcher.eval_batch_size"); ok {
			c.EvalBatchSize = v
		} else {
			c.EvalBatchSize = 32
		}
	}
	if c.BucketLength == 0 {
		if v, ok := params.Int("batcher.bucket_length"); ok {
			c.BucketLength = v
		} else {
			c.BucketLength = 32
		}
	}
	if c.MaxEvalLength == 0 {
		if v, ok := params.Int("batcher.max_eval_length"); ok {
			c.MaxEvalLength = v
		} else {
			c.MaxEvalLength = c.BucketLength * 32
		}
	}
	if c.Buckets == nil {
		boundaries, haveBoundaries := params.Ints("batcher.bucket_boundaries")
		sizes, haveSizes := params.Ints("batcher.bucket_batch_sizes")
		if haveBoundaries != haveSizes {
			return fmt.Errorf("batcher.bucket_boundaries and batcher.bucket_batch_sizes must be bound together")
		}
		if haveBoundaries {
			c.Buckets = &Buckets{Boundaries: boundaries, BatchSizes: sizes}
		}
	}
	if c.PadID == 0 {
		if v, ok := params.Int("batcher.pad_id"); ok {
			c.PadID = int64(v)
		}
	}

	if c.BatchSizePerDevice <= 0 {
		return fmt.Errorf("batcher.batch_size_per_device must be positive, got %d", c.BatchSizePerDevice)
	}
	if c.EvalBatchSize <= 0 {
		return fmt.Errorf("batcher.eval_batch_size must be positive, got %d", c.EvalBatchSize)
	}
	if c.BucketLength <= 0 {
		return fmt.Errorf("batcher.bucket_length must be positive, got %d", c.BucketLength)
	}
	if c.MaxEvalLength <= 0 {
		return fmt.Errorf("batcher.max_eval_length must be positive, got %d", c.MaxEvalLength)
	}
	if c.Buckets != nil {
		if err := c.Buckets.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Buckets) validate() error {
	if len(b.Boundaries) == 0 {
		return fmt.Errorf("bucket boundaries must not be empty")
	}
	if !sort.IntsAreSorted(b.Boundaries) {
		return fmt.Errorf("bucket boundaries must be ascending, got %v", b.Boundaries)
	}
	for i, bound := range b.Boundaries {
		if bound <= 0 {
			return fmt.Errorf("bucket boundaries must be positive, got %v", b.Boundaries)
		}
		if i > 0 && bound == b.Boundaries[i-1] {
			return fmt.Errorf("bucket boundaries must be strictly ascending, got %v", b.Boundaries)
		}
	}
	if len(b.BatchSizes) != len(b.Boundaries)+1 {
		return fmt.Errorf("want %d bucket batch sizes for %d boundaries, got %d",
			len(b.Boundaries)+1, len(b.Boundaries), len(b.BatchSizes))
	}
	for _, size := range b.BatchSizes {
		if size <= 0 {
			return fmt.Errorf("bucket batch sizes must be positive, got %v", b.BatchSizes)
		}
	}
	return nil
}

// Batch is one padded batch of token sequences. Inputs and Targets share the
// leading dimension and the padded width.
type Batch struct {
	Inputs  [][]int64
	Targets [][]int64
}

// Size is the batch leading dimension.
func (b Batch) Size() int {
	return len(b.Targets)
}

// Width is the padded sequence length, zero for an empty batch.
func (b Batch) Width() int {
	if len(b.Targets) == 0 {
		return 0
	}
	return len(b.Targets[0])
}

// Batcher builds batch streams from one validated configuration.
type Batcher struct {
	cfg Config
}

// New validates the configuration, filling unset fields from bound
// parameters.
func New(cfg Config) (*Batcher, error) {
	if err := cfg.applyParams(); err != nil {
		return nil, fmt.Errorf("failed to configure batcher: %w", err)
	}
	return &Batcher{cfg: cfg}, nil
}

// Batches is the training batch stream. Bucket batch sizes scale with
// nDevices and every emitted batch's leading dimension divides evenly by it.
func (b *Batcher) Batches(s dataset.Stream, nDevices int) iter.Seq[Batch] {
	return b.stream(s, nDevices, b.bucketsFor(true, nDevices))
}

// EvalBatches is the evaluation batch stream, using EvalBatchSize and a
// MaxEvalLength-capped bucket ladder when no explicit Buckets are set.
func (b *Batcher) EvalBatches(s dataset.Stream, nDevices int) iter.Seq[Batch] {
	return b.stream(s, nDevices, b.bucketsFor(false, nDevices))
}

// bucketsFor resolves the effective buckets: the configured ones when set,
// otherwise a ladder derived from BucketLength whose sizes shrink as
// boundaries grow. All sizes are rounded to multiples of nDevices.
func (b *Batcher) bucketsFor(training bool, nDevices int) Buckets {
	devices := max(nDevices, 1)
	bk := b.cfg.Buckets
	if bk == nil {
		bk = b.derivedBuckets(training, devices)
	}
	sizes := make([]int, len(bk.BatchSizes))
	for i, size := range bk.BatchSizes {
		sizes[i] = max(size/devices, 1) * devices
	}
	return Buckets{Boundaries: bk.Boundaries, BatchSizes: sizes}
}

func (b *Batcher) derivedBuckets(training bool, devices int) *Buckets {
	length := b.cfg.BucketLength
	batchSize := b.cfg.BatchSizePerDevice * devices
	if !training {
		batchSize = b.cfg.EvalBatchSize * devices
	}

	boundaries := []int{length / 4, length / 2, length, length * 2, length * 4, length * 8, length * 16}
	sizes := []int{batchSize * 4, batchSize * 2, batchSize,
		batchSize / 2, batchSize / 4, batchSize / 8, batchSize / 16, 1}
	if !training {
		// cap the ladder at MaxEvalLength
		maxEval := b.cfg.MaxEvalLength
		n := 0
		for _, bound := range boundaries {
			if bound < maxEval {
				n++
			}
		}
		boundaries = append(boundaries[:n], maxEval)
		sizes = append(sizes[:n], max(batchSize/maxEval, 1), 1)
	}

	kept := Buckets{}
	for i, bound := range boundaries {
		if bound <= 0 || (i > 0 && bound <= boundaries[i-1]) {
			continue
		}
		kept.Boundaries = append(kept.Boundaries, bound)
		kept.BatchSizes = append(kept.BatchSizes, max(sizes[i], 1))
	}
	kept.BatchSizes = append(kept.BatchSizes, max(sizes[len(sizes)-1], 1))
	return &kept
}

func (b *Batcher) stream(s dataset.Stream, nDevices int, bk Buckets) iter.Seq[Batch] {
	devices := max(nDevices, 1)
	return func(yield func(Batch) bool) {
		pending := make([][]dataset.Example, len(bk.BatchSizes))
		stopped := false

		s(func(ex dataset.Example) bool {
			inputs, _ := ex.Ints("inputs")
			targets, ok := ex.Ints("targets")
			if !ok {
				slog.Debug("batcher skipping example without targets")
				return true
			}
			length := max(len(inputs), len(targets))

			bucket := len(bk.Boundaries)
			for i, bound := range bk.Boundaries {
				if length <= bound {
					bucket = i
					break
				}
			}

			pending[bucket] = append(pending[bucket], ex)
			if len(pending[bucket]) < bk.BatchSizes[bucket] {
				return true
			}
			batch := buildBatch(pending[bucket], b.bucketWidth(bk, bucket, pending[bucket]), b.cfg.PadID)
			pending[bucket] = nil
			if !yield(batch) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return
		}

		// Exhausted source: flush what still divides by the device count.
		for bucket, exs := range pending {
			keep := (len(exs) / devices) * devices
			if dropped := len(exs) - keep; dropped > 0 {
				slog.Debug("batcher dropping partial batch remainder",
					"bucket", bucket, "dropped", dropped)
			}
			if keep == 0 {
				continue
			}
			batch := buildBatch(exs[:keep], b.bucketWidth(bk, bucket, exs[:keep]), b.cfg.PadID)
			if !yield(batch) {
				return
			}
		}
	}
}

// bucketWidth is the padded width for a flush: the bucket boundary for
// bounded buckets, the longest member for the overflow bucket.
func (b *Batcher) bucketWidth(bk Buckets, bucket int, exs []dataset.Example) int {
	if bucket < len(bk.Boundaries) {
		return bk.Boundaries[bucket]
	}
	width := 0
	for _, ex := range exs {
		inputs, _ := ex.Ints("inputs")
		targets, _ := ex.Ints("targets")
		width = max(width, len(inputs), len(targets))
	}
	return width
}

func buildBatch(exs []dataset.Example, width int, padID int64) Batch {
	batch := Batch{
		Inputs:  make([][]int64, len(exs)),
		Targets: make([][]int64, len(exs)),
	}
	for i, ex := range exs {
		inputs, _ := ex.Ints("inputs")
		targets, _ := ex.Ints("targets")
		batch.Inputs[i] = padTo(inputs, width, padID)
		batch.Targets[i] = padTo(targets, width, padID)
	}
	return batch
}

func padTo(ids []int64, width int, padID int64) []int64 {
	out := make([]int64, width)
	n := copy(out, ids)
	for i := n; i < width; i++ {
		out[i] = padID
	}
	return out
}
