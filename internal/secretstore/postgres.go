package secretstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
)

// Postgres is the durable Store backing production deployments, grounded
// on the pgxpool wiring used across the ingestion pipeline (e.g. the
// postgres-ducklake-flusher's connection setup). It stores the `secrets`
// table named in spec.md §6.3.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and pings it; EnsureSchema creates the
// secrets table.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("secretstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("secretstore: ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the secrets table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS secrets (
			order_hash  TEXT PRIMARY KEY,
			hashlock    TEXT,
			preimage    TEXT,
			revealed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_secrets_hashlock ON secrets(hashlock) WHERE hashlock IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_secrets_revealed_at ON secrets(revealed_at) WHERE revealed_at IS NOT NULL;
	`)
	if err != nil {
		return fmt.Errorf("secretstore: ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) NewSecret(ctx context.Context) (chainmodel.Preimage, error) {
	return newPreimage()
}

func (p *Postgres) BindToOrder(ctx context.Context, orderHash chainmodel.OrderHash, preimage chainmodel.Preimage, hashlock chainmodel.Hashlock) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("secretstore: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var hashlockArg *string
	if !hashlock.IsZero() {
		s := hashlock.String()
		hashlockArg = &s
	}

	var existing *string
	err = tx.QueryRow(ctx, `SELECT preimage FROM secrets WHERE order_hash = $1`, orderHash.String()).Scan(&existing)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, `INSERT INTO secrets (order_hash, hashlock, preimage) VALUES ($1, $2, $3)`,
			orderHash.String(), hashlockArg, preimage.String())
		if err != nil {
			return fmt.Errorf("secretstore: insert: %w", err)
		}
	case err != nil:
		return fmt.Errorf("secretstore: lookup: %w", err)
	case existing != nil && *existing != preimage.String():
		return ErrAlreadyBound
	default:
		_, err = tx.Exec(ctx, `UPDATE secrets SET preimage = $2, hashlock = COALESCE(hashlock, $3) WHERE order_hash = $1`,
			orderHash.String(), preimage.String(), hashlockArg)
		if err != nil {
			return fmt.Errorf("secretstore: update: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) GetByOrder(ctx context.Context, orderHash chainmodel.OrderHash) (Record, error) {
	return p.scanOne(ctx, `SELECT order_hash, hashlock, preimage, revealed_at FROM secrets WHERE order_hash = $1`, orderHash.String())
}

func (p *Postgres) GetByHashlock(ctx context.Context, hashlock chainmodel.Hashlock) (Record, error) {
	return p.scanOne(ctx, `SELECT order_hash, hashlock, preimage, revealed_at FROM secrets WHERE hashlock = $1`, hashlock.String())
}

func (p *Postgres) scanOne(ctx context.Context, query string, arg string) (Record, error) {
	var orderHashStr string
	var hashlockStr, preimageStr *string
	var revealedAt *time.Time

	err := p.pool.QueryRow(ctx, query, arg).Scan(&orderHashStr, &hashlockStr, &preimageStr, &revealedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("secretstore: query: %w", err)
	}
	return rowToRecord(orderHashStr, hashlockStr, preimageStr, revealedAt)
}

func rowToRecord(orderHashStr string, hashlockStr, preimageStr *string, revealedAt *time.Time) (Record, error) {
	var rec Record
	oh, err := chainmodel.ParseOrderHash(orderHashStr)
	if err != nil {
		return Record{}, fmt.Errorf("secretstore: corrupt order_hash: %w", err)
	}
	rec.OrderHash = oh
	if hashlockStr != nil {
		hl, err := chainmodel.ParseHashlock(*hashlockStr)
		if err != nil {
			return Record{}, fmt.Errorf("secretstore: corrupt hashlock: %w", err)
		}
		rec.Hashlock = hl
	}
	if preimageStr != nil {
		pi, err := chainmodel.ParsePreimage(*preimageStr)
		if err != nil {
			return Record{}, fmt.Errorf("secretstore: corrupt preimage: %w", err)
		}
		rec.Preimage = pi
	}
	if revealedAt != nil {
		rec.RevealedAt = *revealedAt
	}
	return rec, nil
}

func (p *Postgres) RecordReveal(ctx context.Context, orderHash chainmodel.OrderHash, preimage chainmodel.Preimage, hashlock chainmodel.Hashlock) (Record, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("secretstore: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var hashlockArg *string
	if !hashlock.IsZero() {
		s := hashlock.String()
		hashlockArg = &s
	}

	var existing *string
	var revealedAt *time.Time
	err = tx.QueryRow(ctx, `SELECT preimage, revealed_at FROM secrets WHERE order_hash = $1`, orderHash.String()).Scan(&existing, &revealedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		now := time.Now()
		_, err = tx.Exec(ctx, `INSERT INTO secrets (order_hash, hashlock, preimage, revealed_at) VALUES ($1, $2, $3, $4)`,
			orderHash.String(), hashlockArg, preimage.String(), now)
		if err != nil {
			return Record{}, fmt.Errorf("secretstore: insert: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return Record{}, err
		}
		return Record{OrderHash: orderHash, Hashlock: hashlock, Preimage: preimage, RevealedAt: now}, nil
	case err != nil:
		return Record{}, fmt.Errorf("secretstore: lookup: %w", err)
	}

	if existing != nil && *existing != preimage.String() {
		return Record{}, ErrPreimageMismatch
	}
	_, err = tx.Exec(ctx, `UPDATE secrets SET hashlock = COALESCE(hashlock, $2) WHERE order_hash = $1`,
		orderHash.String(), hashlockArg)
	if err != nil {
		return Record{}, fmt.Errorf("secretstore: backfill hashlock: %w", err)
	}
	if revealedAt == nil {
		now := time.Now()
		_, err = tx.Exec(ctx, `UPDATE secrets SET preimage = $2, revealed_at = $3 WHERE order_hash = $1`,
			orderHash.String(), preimage.String(), now)
		if err != nil {
			return Record{}, fmt.Errorf("secretstore: update: %w", err)
		}
		revealedAt = &now
	}
	if err := tx.Commit(ctx); err != nil {
		return Record{}, err
	}
	return Record{OrderHash: orderHash, Hashlock: hashlock, Preimage: preimage, RevealedAt: *revealedAt}, nil
}

func (p *Postgres) GC(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM secrets WHERE revealed_at IS NOT NULL AND revealed_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("secretstore: gc: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

var _ Store = (*Postgres)(nil)
