package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDatabase struct {
	pool *pgxpool.Pool
}

func NewPostgresDatabase(ctx context.Context, connectionString string) (*PostgresDatabase, error) {
	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresDatabase{pool: pool}, nil
}

func (p *PostgresDatabase) CreateDatabase(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS upload_records (
		id UUID PRIMARY KEY,
		source_ref TEXT NOT NULL,
		click_x INTEGER,
		click_y INTEGER,
		color TEXT NOT NULL,
		result_ref TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("failed to create upload_records table: %w", err)
	}
	return nil
}

func (p *PostgresDatabase) DoesDatabaseExist(ctx context.Context) bool {
	return p.pool.Ping(ctx) == nil
}

func (p *PostgresDatabase) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresDatabase) CreateRecord(ctx context.Context, record UploadRecord) (*UploadRecord, error) {
	id, err := generateID()
	if err != nil {
		return nil, err
	}
	record.ID = id
	record.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	record.ResultRef = nil

	_, err = p.pool.Exec(ctx,
		"INSERT INTO upload_records (id, source_ref, click_x, click_y, color, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		record.ID, record.SourceRef, record.ClickX, record.ClickY, record.Color, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert record: %w", err)
	}
	return &record, nil
}

func (p *PostgresDatabase) SetResultRef(ctx context.Context, id string, resultRef string) error {
	recordID, ok := parseRecordID(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrRecordNotFound)
	}
	tag, err := p.pool.Exec(ctx, "UPDATE upload_records SET result_ref = $1 WHERE id = $2::uuid", resultRef, recordID.String())
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, ErrRecordNotFound)
	}
	return nil
}

func (p *PostgresDatabase) GetRecordByID(ctx context.Context, id string) (*UploadRecord, error) {
	recordID, ok := parseRecordID(id)
	if !ok {
		return nil, nil
	}
	row := p.pool.QueryRow(ctx,
		"SELECT id::text, source_ref, click_x, click_y, color, result_ref, created_at FROM upload_records WHERE id = $1::uuid", recordID.String())
	record, err := scanPostgresRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return record, nil
}

func (p *PostgresDatabase) ListRecords(ctx context.Context, limit int) ([]*UploadRecord, error) {
	query := "SELECT id::text, source_ref, click_x, click_y, color, result_ref, created_at FROM upload_records ORDER BY created_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []*UploadRecord{}
	for rows.Next() {
		record, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

func scanPostgresRecord(row pgx.Row) (*UploadRecord, error) {
	var record UploadRecord
	if err := row.Scan(&record.ID, &record.SourceRef, &record.ClickX, &record.ClickY, &record.Color, &record.ResultRef, &record.CreatedAt); err != nil {
		return nil, err
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return &record, nil
}
