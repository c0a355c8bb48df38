package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Every connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS upload_records (
		id TEXT PRIMARY KEY,
		source_ref TEXT NOT NULL,
		click_x INTEGER,
		click_y INTEGER,
		color TEXT NOT NULL,
		result_ref TEXT,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create upload_records table: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist(ctx context.Context) bool {
	// In SQLite, the database file is created when you connect to it.
	// So we can assume it exists if we can successfully ping the database.
	err := s.db.PingContext(ctx)
	return err == nil
}

func (s *SQLiteDatabase) CreateRecord(ctx context.Context, record UploadRecord) (*UploadRecord, error) {
	id, err := generateID()
	if err != nil {
		return nil, err
	}
	record.ID = id
	record.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	record.ResultRef = nil

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO upload_records (id, source_ref, click_x, click_y, color, result_ref, created_at) VALUES (?, ?, ?, ?, ?, NULL, ?)",
		record.ID, record.SourceRef, record.ClickX, record.ClickY, record.Color, record.CreatedAt.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("failed to insert record: %w", err)
	}
	return &record, nil
}

func (s *SQLiteDatabase) SetResultRef(ctx context.Context, id string, resultRef string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE upload_records SET result_ref = ? WHERE id = ?", resultRef, id)
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrRecordNotFound)
	}
	return nil
}

func (s *SQLiteDatabase) GetRecordByID(ctx context.Context, id string) (*UploadRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, source_ref, click_x, click_y, color, result_ref, created_at FROM upload_records WHERE id = ?", id)
	record, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return record, nil
}

func (s *SQLiteDatabase) ListRecords(ctx context.Context, limit int) ([]*UploadRecord, error) {
	query := "SELECT id, source_ref, click_x, click_y, color, result_ref, created_at FROM upload_records ORDER BY created_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	records := []*UploadRecord{}
	for rows.Next() {
		record, err := scanSQLiteRecord(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*UploadRecord, error) {
	var (
		record    UploadRecord
		clickX    sql.NullInt64
		clickY    sql.NullInt64
		resultRef sql.NullString
		createdAt int64
	)
	if err := row.Scan(&record.ID, &record.SourceRef, &clickX, &clickY, &record.Color, &resultRef, &createdAt); err != nil {
		return nil, err
	}
	if clickX.Valid {
		x := int(clickX.Int64)
		record.ClickX = &x
	}
	if clickY.Valid {
		y := int(clickY.Int64)
		record.ClickY = &y
	}
	if resultRef.Valid {
		ref := resultRef.String
		record.ResultRef = &ref
	}
	record.CreatedAt = time.UnixMicro(createdAt).UTC()
	return &record, nil
}
