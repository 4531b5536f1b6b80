package drop

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
)

const (
	defaultCommitChunkSize    = 1000
	defaultCommitSubBatchSize = 10
	defaultCommitParallelism  = 4
)

// ConfigLine is one (name, uri) pair committed to the remote configuration.
type ConfigLine struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// ConfigHandle identifies a created remote configuration.
type ConfigHandle struct {
	UUID    string `json:"uuid"`
	Address string `json:"address"`
}

// CreateConfigParams is everything the remote configuration needs at
// creation time, derived from the first manifest and the catalog size.
type CreateConfigParams struct {
	UUID                 string            `json:"uuid"`
	Symbol               string            `json:"symbol"`
	SellerFeeBasisPoints int               `json:"seller_fee_basis_points"`
	Creators             []ManifestCreator `json:"creators"`
	ItemsAvailable       int               `json:"items_available"`
}

// ConfigClient is the remote-configuration collaborator. CommitLines must be
// harmless under retry: committing an already-committed range again is a
// no-op remotely.
type ConfigClient interface {
	CreateConfig(ctx context.Context, params CreateConfigParams) (ConfigHandle, error)
	CommitLines(ctx context.Context, handle ConfigHandle, startIndex int, lines []ConfigLine) (string, error)
}

// ChainWriter commits uploaded links into the remote configuration in small
// fixed-size batches. Outer chunks run under bounded parallelism; the
// sub-batches inside one chunk run strictly sequentially so the persisted
// cache always reflects a prefix of that chunk's committed work. A failed
// sub-batch is logged and skipped; it never blocks its siblings.
type ChainWriter struct {
	Client ConfigClient
	Cache  *Cache

	// Persist is called after every successful sub-batch.
	Persist func(ctx context.Context) error

	ChunkSize    int
	SubBatchSize int
	Parallelism  int
	Logger       *slog.Logger
}

func (w *ChainWriter) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// Write commits every linked-but-uncommitted item. It returns the number of
// failed sub-batches; a non-zero count means the run is not fully
// successful but everything that could be committed has been.
func (w *ChainWriter) Write(ctx context.Context) (int, error) {
	handle := ConfigHandle{
		UUID:    w.Cache.Program().UUID,
		Address: w.Cache.Program().Config,
	}
	if handle.Address == "" {
		return 0, ErrConfigNotCreated
	}

	chunkSize := w.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultCommitChunkSize
	}
	subBatchSize := w.SubBatchSize
	if subBatchSize <= 0 {
		subBatchSize = defaultCommitSubBatchSize
	}
	parallelism := w.Parallelism
	if parallelism <= 0 {
		parallelism = defaultCommitParallelism
	}

	chunks := chunkIndices(w.Cache.LinkedIndices(), chunkSize)
	if parallelism > len(chunks) {
		parallelism = len(chunks)
	}

	var failed atomic.Int64
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	for _, chunk := range chunks {
		chunk := chunk
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			failed.Add(int64(w.writeChunk(ctx, handle, chunk, subBatchSize)))
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return int(failed.Load()), err
	}
	return int(failed.Load()), nil
}

// writeChunk walks one outer chunk's sub-batches in order, committing each
// and persisting before moving to the next. Returns the number of failed
// sub-batches.
func (w *ChainWriter) writeChunk(ctx context.Context, handle ConfigHandle, chunk []string, subBatchSize int) int {
	failed := 0
	for _, batch := range chunkIndices(chunk, subBatchSize) {
		if ctx.Err() != nil {
			return failed
		}
		if w.Cache.AllOnChain(batch) {
			continue
		}

		if err := w.commitSubBatch(ctx, handle, batch); err != nil {
			w.logger().ErrorContext(ctx, "config line batch failed",
				"from", batch[0], "to", batch[len(batch)-1], "error", err)
			failed++
			continue
		}

		w.Cache.MarkOnChain(batch...)
		if w.Persist != nil {
			if err := w.Persist(ctx); err != nil {
				w.logger().ErrorContext(ctx, "cache persist after commit failed",
					"from", batch[0], "to", batch[len(batch)-1], "error", err)
				failed++
			}
		}
	}
	return failed
}

func (w *ChainWriter) commitSubBatch(ctx context.Context, handle ConfigHandle, batch []string) error {
	startIndex, err := strconv.Atoi(batch[0])
	if err != nil {
		return fmt.Errorf("sub-batch start index %q is not numeric: %w", batch[0], err)
	}

	lines := make([]ConfigLine, 0, len(batch))
	for _, index := range batch {
		item, ok := w.Cache.Item(index)
		if !ok || item.Link == "" {
			return fmt.Errorf("index %s has no uploaded link", index)
		}
		lines = append(lines, ConfigLine{Name: item.Name, URI: item.Link})
	}

	receipt, err := w.Client.CommitLines(ctx, handle, startIndex, lines)
	if err != nil {
		return err
	}
	w.logger().DebugContext(ctx, "config lines committed",
		"start_index", startIndex, "count", len(lines), "receipt", receipt)
	return nil
}
