// ABOUTME: DocumentIndexService manages indexed document records
// ABOUTME: Content and provenance only; semantic search lives in the backend

package docindex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neurofluxion/flux-gateway/internal/store"
)

// DocumentStore defines what the service needs from storage
type DocumentStore interface {
	CreateDocument(ctx context.Context, create store.CreateDocument, now time.Time) (*store.Document, error)
	GetDocument(ctx context.Context, id int64) (*store.Document, error)
	ListDocuments(ctx context.Context) ([]*store.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
}

// Service holds indexed documents. There is deliberately no update
// operation: documents are re-indexed by delete and create.
type Service struct {
	store  DocumentStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new document index Service
func New(st DocumentStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "docindex"),
		now:    time.Now,
	}
}

// Create stores an indexed document record.
func (s *Service) Create(ctx context.Context, create store.CreateDocument) (*store.Document, error) {
	doc, err := s.store.CreateDocument(ctx, create, s.now())
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}
	s.logger.Debug("document indexed", "document_id", doc.ID, "type", doc.DocumentType)
	return doc, nil
}

// Get returns a document by ID.
func (s *Service) Get(ctx context.Context, id int64) (*store.Document, error) {
	return s.store.GetDocument(ctx, id)
}

// List returns all indexed documents.
func (s *Service) List(ctx context.Context) ([]*store.Document, error) {
	return s.store.ListDocuments(ctx)
}

// Delete removes a document, no-op when absent.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteDocument(ctx, id)
}
