package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/money"
)

// PostgresRepository persists the `swaps` table from spec.md §6.3,
// grounded on the same pgxpool wiring as internal/secretstore.Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("swap: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("swap: ping: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the underlying connection pool so the daemon's
// composition root can share it with ingest.PostgresCheckpointStore
// instead of opening a second pool against the same DSN.
func (r *PostgresRepository) Pool() *pgxpool.Pool { return r.pool }

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS swaps (
			order_hash      TEXT PRIMARY KEY,
			src_chain       TEXT NOT NULL,
			dst_chain       TEXT NOT NULL,
			maker           TEXT NOT NULL,
			taker           TEXT NOT NULL,
			maker_asset     TEXT NOT NULL,
			taker_asset     TEXT NOT NULL,
			making_amount   TEXT NOT NULL,
			taking_amount   TEXT NOT NULL,
			hashlock        TEXT NOT NULL,
			preimage        TEXT,
			src_withdrawal           TIMESTAMPTZ NOT NULL,
			src_public_withdrawal    TIMESTAMPTZ NOT NULL,
			src_cancellation         TIMESTAMPTZ NOT NULL,
			src_public_cancellation  TIMESTAMPTZ NOT NULL,
			dst_withdrawal           TIMESTAMPTZ NOT NULL,
			dst_public_withdrawal    TIMESTAMPTZ NOT NULL,
			dst_cancellation         TIMESTAMPTZ NOT NULL,
			dst_public_cancellation  TIMESTAMPTZ NOT NULL,
			src_escrow      TEXT,
			dst_escrow      TEXT,
			src_withdrawn   BOOLEAN NOT NULL DEFAULT FALSE,
			dst_withdrawn   BOOLEAN NOT NULL DEFAULT FALSE,
			src_cancelled   BOOLEAN NOT NULL DEFAULT FALSE,
			dst_cancelled   BOOLEAN NOT NULL DEFAULT FALSE,
			status          TEXT NOT NULL,
			last_error      TEXT,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_swaps_status ON swaps(status);
		CREATE INDEX IF NOT EXISTS idx_swaps_updated_at ON swaps(updated_at);
	`)
	if err != nil {
		return fmt.Errorf("swap: ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() { r.pool.Close() }

func (r *PostgresRepository) Create(ctx context.Context, s *Swap) error {
	now := time.Now()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO swaps (order_hash, src_chain, dst_chain, maker, taker, maker_asset, taker_asset,
			making_amount, taking_amount, hashlock, preimage,
			src_withdrawal, src_public_withdrawal, src_cancellation, src_public_cancellation,
			dst_withdrawal, dst_public_withdrawal, dst_cancellation, dst_public_cancellation,
			src_escrow, dst_escrow, src_withdrawn, dst_withdrawn, src_cancelled, dst_cancelled,
			status, last_error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,
			$20,$21,$22,$23,$24,$25,$26,$27,$28,$28)`,
		s.OrderHash.String(), string(s.SrcChain), string(s.DstChain), s.Maker, s.Taker,
		s.MakerAsset, s.TakerAsset, s.MakingAmount.String(), s.TakingAmount.String(),
		s.Hashlock.String(), nullablePreimage(s.Preimage),
		s.Timelocks.SrcWithdrawal, s.Timelocks.SrcPublicWithdrawal, s.Timelocks.SrcCancellation, s.Timelocks.SrcPublicCancellation,
		s.Timelocks.DstWithdrawal, s.Timelocks.DstPublicWithdrawal, s.Timelocks.DstCancellation, s.Timelocks.DstPublicCancellation,
		nullableString(s.SrcEscrowAddress), nullableString(s.DstEscrowAddress),
		s.SrcWithdrawn, s.DstWithdrawn, s.SrcCancelled, s.DstCancelled,
		s.Status.String(), nullableString(s.LastError), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("swap: insert: %w", err)
	}
	s.CreatedAt, s.UpdatedAt = now, now
	return nil
}

const swapColumns = `order_hash, src_chain, dst_chain, maker, taker, maker_asset, taker_asset,
			making_amount, taking_amount, hashlock, preimage,
			src_withdrawal, src_public_withdrawal, src_cancellation, src_public_cancellation,
			dst_withdrawal, dst_public_withdrawal, dst_cancellation, dst_public_cancellation,
			src_escrow, dst_escrow, src_withdrawn, dst_withdrawn, src_cancelled, dst_cancelled,
			status, last_error, created_at, updated_at`

// postgresUniqueViolation is the SQLSTATE Postgres raises on a primary
// key conflict.
const postgresUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullablePreimage(p chainmodel.Preimage) *string {
	if p.IsZero() {
		return nil
	}
	s := p.String()
	return &s
}

func (r *PostgresRepository) FindByOrderHash(ctx context.Context, orderHash chainmodel.OrderHash) (*Swap, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+swapColumns+` FROM swaps WHERE order_hash = $1`, orderHash.String())
	s, err := scanSwap(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func scanSwap(row pgx.Row) (*Swap, error) {
	var s Swap
	var orderHashStr, srcChainStr, dstChainStr, hashlockStr, makingStr, takingStr, statusStr string
	var preimageStr, srcEscrow, dstEscrow, lastError *string

	err := row.Scan(&orderHashStr, &srcChainStr, &dstChainStr, &s.Maker, &s.Taker,
		&s.MakerAsset, &s.TakerAsset, &makingStr, &takingStr, &hashlockStr, &preimageStr,
		&s.Timelocks.SrcWithdrawal, &s.Timelocks.SrcPublicWithdrawal, &s.Timelocks.SrcCancellation, &s.Timelocks.SrcPublicCancellation,
		&s.Timelocks.DstWithdrawal, &s.Timelocks.DstPublicWithdrawal, &s.Timelocks.DstCancellation, &s.Timelocks.DstPublicCancellation,
		&srcEscrow, &dstEscrow, &s.SrcWithdrawn, &s.DstWithdrawn, &s.SrcCancelled, &s.DstCancelled,
		&statusStr, &lastError, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("swap: scan: %w", err)
	}

	oh, err := chainmodel.ParseOrderHash(orderHashStr)
	if err != nil {
		return nil, fmt.Errorf("swap: corrupt order_hash: %w", err)
	}
	s.OrderHash = oh
	s.SrcChain, s.DstChain = chainmodel.ChainID(srcChainStr), chainmodel.ChainID(dstChainStr)

	if s.Hashlock, err = chainmodel.ParseHashlock(hashlockStr); err != nil {
		return nil, fmt.Errorf("swap: corrupt hashlock: %w", err)
	}
	if preimageStr != nil {
		if s.Preimage, err = chainmodel.ParsePreimage(*preimageStr); err != nil {
			return nil, fmt.Errorf("swap: corrupt preimage: %w", err)
		}
	}
	if s.MakingAmount, err = money.Parse(makingStr); err != nil {
		return nil, fmt.Errorf("swap: corrupt making_amount: %w", err)
	}
	if s.TakingAmount, err = money.Parse(takingStr); err != nil {
		return nil, fmt.Errorf("swap: corrupt taking_amount: %w", err)
	}
	if s.Status, err = ParseStatus(statusStr); err != nil {
		return nil, err
	}
	if srcEscrow != nil {
		s.SrcEscrowAddress = *srcEscrow
	}
	if dstEscrow != nil {
		s.DstEscrowAddress = *dstEscrow
	}
	if lastError != nil {
		s.LastError = *lastError
	}
	return &s, nil
}

// Update loads the current row, applies mutate, and writes back under a
// WHERE clause pinned to the expected updated_at — the CAS spec.md §4.6
// requires. Orchestrator callers serialize concurrent access per order
// hash, but this check still catches a stray concurrent writer.
func (r *PostgresRepository) Update(ctx context.Context, orderHash chainmodel.OrderHash, expectedUpdatedAt time.Time, mutate func(*Swap) error) (*Swap, error) {
	current, err := r.FindByOrderHash(ctx, orderHash)
	if err != nil {
		return nil, err
	}
	if !current.UpdatedAt.Equal(expectedUpdatedAt) {
		return nil, ErrStaleUpdate
	}

	priorStatus := current.Status
	if err := mutate(current); err != nil {
		return nil, err
	}
	if current.Status != priorStatus && !CanTransition(priorStatus, current.Status) {
		return nil, ErrBackwardTransition
	}

	now := time.Now()
	tag, err := r.pool.Exec(ctx, `
		UPDATE swaps SET preimage=$2, src_escrow=$3, dst_escrow=$4,
			src_withdrawn=$5, dst_withdrawn=$6, src_cancelled=$7, dst_cancelled=$8,
			status=$9, last_error=$10, updated_at=$11
		WHERE order_hash=$1 AND updated_at=$12`,
		orderHash.String(), nullablePreimage(current.Preimage), nullableString(current.SrcEscrowAddress),
		nullableString(current.DstEscrowAddress),
		current.SrcWithdrawn, current.DstWithdrawn, current.SrcCancelled, current.DstCancelled,
		current.Status.String(), nullableString(current.LastError),
		now, expectedUpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("swap: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrStaleUpdate
	}
	current.UpdatedAt = now
	return current, nil
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status) ([]*Swap, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+swapColumns+` FROM swaps WHERE status = $1`, status.String())
	if err != nil {
		return nil, fmt.Errorf("swap: list: %w", err)
	}
	defer rows.Close()

	var out []*Swap
	for rows.Next() {
		s, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ActiveCount(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM swaps WHERE status NOT IN ($1, $2, $3)`,
		StatusCompleted.String(), StatusCancelled.String(), StatusFailed.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("swap: active count: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) GC(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM swaps WHERE status IN ($1,$2,$3) AND updated_at < $4`,
		StatusCompleted.String(), StatusCancelled.String(), StatusFailed.String(), olderThan)
	if err != nil {
		return 0, fmt.Errorf("swap: gc: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

var _ Repository = (*PostgresRepository)(nil)
