// Package ingest implements the per-chain Event Ingestor (spec.md §4.4):
// a cooperative polling loop that turns ChainAdapter events into a
// checkpointed, at-least-once delivery stream for the Orchestrator.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
)

// CheckpointStore persists the `(chain_id, last_processed_height)`
// durable marker from spec.md §3/§6.3. Load returns 0 on first start.
type CheckpointStore interface {
	Load(ctx context.Context, chain chainmodel.ChainID) (uint64, error)
	Save(ctx context.Context, chain chainmodel.ChainID, height uint64) error

	// Rewind moves the checkpoint backward, the one operation spec.md
	// §4.4/§8 property 8 explicitly exempts from the monotonic-Save
	// rule: a detected reorg.
	Rewind(ctx context.Context, chain chainmodel.ChainID, height uint64) error
}

// MemoryCheckpointStore is an in-process CheckpointStore for tests and
// single-process deployments.
type MemoryCheckpointStore struct {
	mu      sync.Mutex
	heights map[chainmodel.ChainID]uint64
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{heights: make(map[chainmodel.ChainID]uint64)}
}

func (m *MemoryCheckpointStore) Load(ctx context.Context, chain chainmodel.ChainID) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heights[chain], nil
}

func (m *MemoryCheckpointStore) Save(ctx context.Context, chain chainmodel.ChainID, height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.heights[chain]; ok && height < h {
		return fmt.Errorf("ingest: checkpoint for %s must not decrease outside a reorg rewind (have %d, got %d)", chain, h, height)
	}
	m.heights[chain] = height
	return nil
}

// Rewind is used only by the reorg path, which is explicitly allowed to
// move the checkpoint backward (spec.md §4.4/§8 property 8).
func (m *MemoryCheckpointStore) Rewind(ctx context.Context, chain chainmodel.ChainID, height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heights[chain] = height
	return nil
}

var _ CheckpointStore = (*MemoryCheckpointStore)(nil)

// PostgresCheckpointStore persists `chain_checkpoints(chain_id,
// last_height)` from spec.md §6.3, grounded on
// bronze-silver-transformer/go/checkpoint.go's Load/Save shape.
type PostgresCheckpointStore struct {
	pool *pgxpool.Pool
}

func NewPostgresCheckpointStore(pool *pgxpool.Pool) *PostgresCheckpointStore {
	return &PostgresCheckpointStore{pool: pool}
}

func (p *PostgresCheckpointStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chain_checkpoints (
			chain_id    TEXT PRIMARY KEY,
			last_height BIGINT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ingest: ensure schema: %w", err)
	}
	return nil
}

func (p *PostgresCheckpointStore) Load(ctx context.Context, chain chainmodel.ChainID) (uint64, error) {
	var height int64
	err := p.pool.QueryRow(ctx, `SELECT last_height FROM chain_checkpoints WHERE chain_id = $1`, string(chain)).Scan(&height)
	if errors.Is(err, pgx.ErrNoRows) {
		// No row yet is the documented "0 on first start" case, not an error.
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ingest: load checkpoint: %w", err)
	}
	return uint64(height), nil
}

func (p *PostgresCheckpointStore) Save(ctx context.Context, chain chainmodel.ChainID, height uint64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO chain_checkpoints (chain_id, last_height) VALUES ($1, $2)
		ON CONFLICT (chain_id) DO UPDATE SET last_height = EXCLUDED.last_height`,
		string(chain), int64(height))
	if err != nil {
		return fmt.Errorf("ingest: save checkpoint: %w", err)
	}
	return nil
}

// Rewind shares Save's upsert; the table has no guard against a
// decreasing value, so the reorg path's backward move needs no special
// statement here the way MemoryCheckpointStore's does.
func (p *PostgresCheckpointStore) Rewind(ctx context.Context, chain chainmodel.ChainID, height uint64) error {
	return p.Save(ctx, chain, height)
}

var _ CheckpointStore = (*PostgresCheckpointStore)(nil)
