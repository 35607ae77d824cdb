// Package storage provides the file storage capability consumed by the
// scraping engine for order PDFs. Paths are logical keys shaped like
// {session_or_case_id}/{filename}; Save returns the resolved location used
// for later Read/Delete calls.
package storage

import "context"

// Storage persists binary artifacts outside the database.
type Storage interface {
	Save(ctx context.Context, path string, data []byte) (string, error)
	Read(ctx context.Context, location string) ([]byte, error)
	Delete(ctx context.Context, location string) error
}
