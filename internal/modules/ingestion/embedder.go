package ingestion

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/yungbote/sitechat-backend/internal/platform/envutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/openai"
)

const DefaultBatchSize = 64

// Embedder fans embedding batches out over a bounded goroutine pool.
type Embedder struct {
	log       *logger.Logger
	ai        openai.Client
	pool      *ants.Pool
	batchSize int
}

// NewEmbedder sizes the pool from EMBED_CONCURRENCY (default 4).
func NewEmbedder(log *logger.Logger, ai openai.Client) (*Embedder, error) {
	return NewEmbedderSize(log, ai, envutil.Int("EMBED_CONCURRENCY", 4), DefaultBatchSize)
}

func NewEmbedderSize(log *logger.Logger, ai openai.Client, poolSize, batchSize int) (*Embedder, error) {
	if log == nil || ai == nil {
		return nil, fmt.Errorf("embedder: missing deps")
	}
	if poolSize < 1 {
		poolSize = 1
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	return &Embedder{
		log:       log.With("component", "Embedder"),
		ai:        ai,
		pool:      pool,
		batchSize: batchSize,
	}, nil
}

func (e *Embedder) Release() {
	if e != nil && e.pool != nil {
		e.pool.Release()
	}
}

// EmbedChunks returns one vector per text, in input order. The first failing
// batch cancels the rest. onBatch, when set, receives the number of texts
// embedded so far and may be called from several goroutines.
func (e *Embedder) EmbedChunks(ctx context.Context, texts []string, onBatch func(done int)) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
		done     int64
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		if ctx.Err() != nil {
			break
		}
		start, end := start, end
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vecs, err := e.ai.Embed(ctx, texts[start:end])
			if err != nil {
				fail(fmt.Errorf("embed batch %d-%d: %w", start, end, err))
				return
			}
			if len(vecs) != end-start {
				fail(fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(vecs)))
				return
			}
			copy(out[start:end], vecs)
			n := atomic.AddInt64(&done, int64(end-start))
			if onBatch != nil {
				onBatch(int(n))
			}
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
