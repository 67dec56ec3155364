package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Schera-ole/hostagent/internal/config"
	internalerrors "github.com/Schera-ole/hostagent/internal/errors"
	models "github.com/Schera-ole/hostagent/internal/model"
)

type DBStorage struct {
	db *sql.DB
}

func NewDBStorage(dsn string) (*DBStorage, error) {
	dbConnect, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DBStorage{db: dbConnect}, nil
}

func (storage *DBStorage) Close() error {
	return storage.db.Close()
}

func (storage *DBStorage) RegisterAgent(ctx context.Context, token string, config models.Configuration) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	query := "INSERT INTO agents (token, config, created_at, updated_at) VALUES ($1, $2, NOW(), NOW()) ON CONFLICT (token) DO NOTHING"
	if _, err := storage.db.ExecContext(ctx, query, token, raw); err != nil {
		return classifyDBError(fmt.Errorf("error registering agent: %w", err))
	}
	return nil
}

func (storage *DBStorage) GetConfig(ctx context.Context, token string) (models.Configuration, error) {
	var raw []byte
	err := storage.db.QueryRowContext(ctx, "SELECT config FROM agents WHERE token = $1", token).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Configuration{}, internalerrors.ErrAgentNotFound
		}
		return models.Configuration{}, classifyDBError(fmt.Errorf("error retrieving config: %w", err))
	}
	var config models.Configuration
	if err := json.Unmarshal(raw, &config); err != nil {
		return models.Configuration{}, fmt.Errorf("error decoding config: %w", err)
	}
	return config, nil
}

func (storage *DBStorage) SetConfig(ctx context.Context, token string, config models.Configuration) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	result, err := storage.db.ExecContext(ctx, "UPDATE agents SET config = $1, updated_at = NOW() WHERE token = $2", raw, token)
	if err != nil {
		return classifyDBError(fmt.Errorf("error saving config: %w", err))
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return internalerrors.ErrAgentNotFound
	}
	return nil
}

// SaveSnapshot inserts a snapshot and trims the agent history to
// config.SnapshotRetention rows in the same transaction.
func (storage *DBStorage) SaveSnapshot(ctx context.Context, token string, record models.SnapshotRecord) error {
	raw, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("error encoding snapshot: %w", err)
	}

	tx, err := storage.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyDBError(fmt.Errorf("can't start transaction: %w", err))
	}
	defer tx.Rollback()

	query := "INSERT INTO snapshots (token, hostname, received_at, data) VALUES ($1, $2, $3, $4)"
	if _, err := tx.ExecContext(ctx, query, token, record.Hostname, record.ReceivedAt, raw); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return internalerrors.ErrAgentNotFound
		}
		return classifyDBError(fmt.Errorf("error saving snapshot: %w", err))
	}

	trim := `DELETE FROM snapshots WHERE token = $1 AND id NOT IN (
		SELECT id FROM snapshots WHERE token = $1 ORDER BY id DESC LIMIT $2)`
	if _, err := tx.ExecContext(ctx, trim, token, config.SnapshotRetention); err != nil {
		return classifyDBError(fmt.Errorf("error trimming snapshots: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return classifyDBError(fmt.Errorf("error committing snapshot: %w", err))
	}
	return nil
}

func (storage *DBStorage) ListSnapshots(ctx context.Context, token string, limit int) ([]models.SnapshotRecord, error) {
	if _, err := storage.GetConfig(ctx, token); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = config.SnapshotRetention
	}

	query := `SELECT hostname, received_at, data FROM (
		SELECT id, hostname, received_at, data FROM snapshots WHERE token = $1 ORDER BY id DESC LIMIT $2
	) recent ORDER BY id`
	rows, err := storage.db.QueryContext(ctx, query, token, limit)
	if err != nil {
		return nil, classifyDBError(fmt.Errorf("error retrieving snapshots: %w", err))
	}
	defer rows.Close()

	var records []models.SnapshotRecord
	for rows.Next() {
		var record models.SnapshotRecord
		var raw []byte
		if err := rows.Scan(&record.Hostname, &record.ReceivedAt, &raw); err != nil {
			return nil, fmt.Errorf("error scanning snapshot: %w", err)
		}
		if err := json.Unmarshal(raw, &record.Data); err != nil {
			return nil, fmt.Errorf("error decoding snapshot: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over snapshots: %w", err)
	}
	return records, nil
}

func (storage *DBStorage) Ping(ctx context.Context) error {
	if err := storage.db.PingContext(ctx); err != nil {
		return classifyDBError(fmt.Errorf("database ping failed: %w", err))
	}
	return nil
}

// classifyDBError marks connection level failures with ErrStorageUnavailable
// so that handlers answer 503 and agents retry.
func classifyDBError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsConnectionException(pgErr.Code) {
		return fmt.Errorf("%w: %w", internalerrors.ErrStorageUnavailable, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%w: %w", internalerrors.ErrStorageUnavailable, err)
	}
	return err
}
