package database

import (
	"context"
	"errors"
)

var ErrRecordNotFound = errors.New("record not found")

type DatabaseService interface {
	CreateDatabase(ctx context.Context) error
	DoesDatabaseExist(ctx context.Context) bool
	Close() error

	// CreateRecord stores a new upload. ID and CreatedAt are assigned by the
	// store and set on the returned copy.
	CreateRecord(ctx context.Context, record UploadRecord) (*UploadRecord, error)
	// SetResultRef attaches the painted artifact to an existing record.
	// Returns ErrRecordNotFound when no record has the given id.
	SetResultRef(ctx context.Context, id string, resultRef string) error
	// GetRecordByID returns nil without error when the record does not exist.
	GetRecordByID(ctx context.Context, id string) (*UploadRecord, error)
	// ListRecords returns the newest records first; limit <= 0 returns all.
	ListRecords(ctx context.Context, limit int) ([]*UploadRecord, error)
}
