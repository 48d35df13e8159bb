// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianlabs/rwa-oracle/internal/app/domain/oracle"
	"github.com/meridianlabs/rwa-oracle/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.ConfigStore = (*Store)(nil)
var _ storage.AssetStore = (*Store)(nil)
var _ storage.SnapshotStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the oracle tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS oracle_config (
			id               BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
			admin            TEXT NOT NULL,
			base_symbol      TEXT NOT NULL,
			decimals         INTEGER NOT NULL,
			fx_source        TEXT NOT NULL,
			max_deviation    NUMERIC NOT NULL,
			period_ms        BIGINT NOT NULL,
			resolution_ms    BIGINT NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS oracle_assets (
			position   SERIAL PRIMARY KEY,
			symbol     TEXT NOT NULL UNIQUE,
			asset_id   TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS oracle_snapshots (
			id         UUID NOT NULL,
			asset_id   TEXT NOT NULL,
			bucket_ms  BIGINT NOT NULL,
			price      NUMERIC NOT NULL,
			yield      NUMERIC NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (asset_id, bucket_ms)
		);
	`)
	return err
}

// --- ConfigStore ------------------------------------------------------------

func (s *Store) GetConfig(ctx context.Context) (oracle.Config, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT admin, base_symbol, decimals, fx_source, max_deviation, period_ms, resolution_ms
		FROM oracle_config
		WHERE id
	`)

	var (
		cfg          oracle.Config
		maxDeviation string
	)
	if err := row.Scan(&cfg.Admin, &cfg.BaseSymbol, &cfg.Decimals, &cfg.FxSource, &maxDeviation, &cfg.Period, &cfg.Resolution); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return oracle.Config{}, oracle.ErrNotFound
		}
		return oracle.Config{}, err
	}

	deviation, err := decimal.NewFromString(maxDeviation)
	if err != nil {
		return oracle.Config{}, err
	}
	cfg.MaxYieldDeviation = deviation
	return cfg, nil
}

func (s *Store) SetConfig(ctx context.Context, cfg oracle.Config) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_config (id, admin, base_symbol, decimals, fx_source, max_deviation, period_ms, resolution_ms, updated_at)
		VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET admin = $1, base_symbol = $2, decimals = $3, fx_source = $4,
		    max_deviation = $5, period_ms = $6, resolution_ms = $7, updated_at = $8
	`, cfg.Admin, cfg.BaseSymbol, cfg.Decimals, cfg.FxSource, cfg.MaxYieldDeviation.String(), cfg.Period, cfg.Resolution, time.Now().UTC())
	return err
}

// --- AssetStore -------------------------------------------------------------

func (s *Store) AppendAssets(ctx context.Context, assets []oracle.Asset) error {
	if len(assets) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, asset := range assets {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO oracle_assets (symbol, asset_id, created_at)
			VALUES ($1, $2, $3)
		`, asset.Symbol, asset.ID, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListAssets(ctx context.Context) ([]oracle.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, asset_id
		FROM oracle_assets
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []oracle.Asset
	for rows.Next() {
		var asset oracle.Asset
		if err := rows.Scan(&asset.Symbol, &asset.ID); err != nil {
			return nil, err
		}
		result = append(result, asset)
	}
	return result, rows.Err()
}

// --- SnapshotStore ----------------------------------------------------------

func (s *Store) PutSnapshot(ctx context.Context, snap oracle.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_snapshots (id, asset_id, bucket_ms, price, yield, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (asset_id, bucket_ms) DO UPDATE
		SET price = $4, yield = $5, created_at = $6
	`, uuid.NewString(), snap.AssetID, snap.Timestamp, snap.Price.String(), snap.Yield.String(), time.Now().UTC())
	return err
}

func (s *Store) GetSnapshot(ctx context.Context, assetID string, bucket int64) (oracle.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT asset_id, bucket_ms, price, yield
		FROM oracle_snapshots
		WHERE asset_id = $1 AND bucket_ms = $2
	`, assetID, bucket)

	snap, err := scanSnapshot(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return oracle.Snapshot{}, oracle.ErrNotFound
		}
		return oracle.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) ListSnapshots(ctx context.Context, assetID string, limit int) ([]oracle.Snapshot, error) {
	query := `
		SELECT asset_id, bucket_ms, price, yield
		FROM oracle_snapshots
		WHERE asset_id = $1
		ORDER BY bucket_ms DESC
	`
	args := []any{assetID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]oracle.Snapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

func (s *Store) PruneSnapshots(ctx context.Context, assetID string, olderThan int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM oracle_snapshots
		WHERE asset_id = $1 AND bucket_ms < $2
	`, assetID, olderThan)
	return err
}

func scanSnapshot(scan func(dest ...any) error) (oracle.Snapshot, error) {
	var (
		snap  oracle.Snapshot
		price string
		yield string
	)
	if err := scan(&snap.AssetID, &snap.Timestamp, &price, &yield); err != nil {
		return oracle.Snapshot{}, err
	}

	var err error
	if snap.Price, err = decimal.NewFromString(price); err != nil {
		return oracle.Snapshot{}, err
	}
	if snap.Yield, err = decimal.NewFromString(yield); err != nil {
		return oracle.Snapshot{}, err
	}
	return snap, nil
}
