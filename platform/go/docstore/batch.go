package docstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxBatchOps is the ceiling on physical operations per commit. Multi-document
// writes are split transparently into sequential chunks of at most this size;
// each chunk commits independently, so a multi-chunk write is not atomic
// across chunks.
const MaxBatchOps = 500

// BatchOp is one physical write queued into a batch.
type BatchOp struct {
	SQL  string
	Args []any
}

// Batcher executes bulk writes against the pool in bounded chunks.
type Batcher struct {
	pool   *pgxpool.Pool
	maxOps int
}

// NewBatcher builds a Batcher with the default chunk ceiling.
func NewBatcher(pool *pgxpool.Pool) *Batcher {
	if pool == nil {
		panic("batcher requires pool")
	}
	return &Batcher{pool: pool, maxOps: MaxBatchOps}
}

// Run executes ops in order, committing every chunk in its own transaction.
// Returns the number of chunks committed. On failure the current chunk rolls
// back; previously committed chunks stay committed.
func (b *Batcher) Run(ctx context.Context, ops []BatchOp) (int, error) {
	committed := 0
	for _, chunk := range Chunk(ops, b.maxOps) {
		if err := b.runChunk(ctx, chunk); err != nil {
			return committed, fmt.Errorf("batch chunk %d: %w", committed, err)
		}
		committed++
	}
	return committed, nil
}

func (b *Batcher) runChunk(ctx context.Context, ops []BatchOp) error {
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	batch := &pgx.Batch{}
	for _, op := range ops {
		batch.Queue(op.SQL, op.Args...)
	}

	results := tx.SendBatch(ctx, batch)
	for range ops {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	if err := results.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Chunk splits ops into slices of at most size elements, preserving order.
func Chunk(ops []BatchOp, size int) [][]BatchOp {
	if size <= 0 {
		size = MaxBatchOps
	}
	var chunks [][]BatchOp
	for start := 0; start < len(ops); start += size {
		end := start + size
		if end > len(ops) {
			end = len(ops)
		}
		chunks = append(chunks, ops[start:end])
	}
	return chunks
}
