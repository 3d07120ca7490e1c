package automation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DocumentStore persists node documents.
//
// Implementations must be thread-safe.
type DocumentStore interface {
	// LoadDocument returns the document stored under id, or
	// ErrDocumentNotFound.
	LoadDocument(ctx context.Context, id string) (*Document, error)

	// SaveDocument creates or replaces the document stored under id.
	SaveDocument(ctx context.Context, id string, doc *Document) error
}

// SQLiteDocumentStore implements DocumentStore on the node_documents table.
type SQLiteDocumentStore struct {
	db *sql.DB
}

// NewSQLiteDocumentStore creates a document store on an open connection.
func NewSQLiteDocumentStore(db *sql.DB) *SQLiteDocumentStore {
	return &SQLiteDocumentStore{db: db}
}

// LoadDocument reads and parses the document stored under id.
func (s *SQLiteDocumentStore) LoadDocument(ctx context.Context, id string) (*Document, error) {
	var content string
	err := s.db.QueryRowContext(ctx, "SELECT content FROM node_documents WHERE id = ?", id).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		return nil, fmt.Errorf("querying node document: %w", err)
	}
	doc, err := ParseDocument([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("stored document %s: %w", id, err)
	}
	return doc, nil
}

// SaveDocument upserts the document under id.
func (s *SQLiteDocumentStore) SaveDocument(ctx context.Context, id string, doc *Document) error {
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	content, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshalling node document: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO node_documents (id, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		id,
		string(content),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving node document: %w", err)
	}
	return nil
}

// LoadOrSeed returns the stored document, seeding the store from seed
// when none exists yet. seed is not called when a document is stored.
func LoadOrSeed(ctx context.Context, store DocumentStore, id string, seed func() (*Document, error)) (*Document, error) {
	doc, err := store.LoadDocument(ctx, id)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, ErrDocumentNotFound) || seed == nil {
		return nil, err
	}
	doc, err = seed()
	if err != nil {
		return nil, fmt.Errorf("seeding node document: %w", err)
	}
	if err := store.SaveDocument(ctx, id, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
