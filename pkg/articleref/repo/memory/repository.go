// Package memory provides an in-memory articleref.Repository.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tendant/article-assets/pkg/articleref"
)

// Repository implements articleref.Repository using in-memory storage
type Repository struct {
	mu          sync.RWMutex
	attachments map[uuid.UUID]*articleref.ReferenceAttachment
	byArticle   map[uuid.UUID][]uuid.UUID
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		attachments: make(map[uuid.UUID]*articleref.ReferenceAttachment),
		byArticle:   make(map[uuid.UUID][]uuid.UUID),
	}
}

func (r *Repository) SaveAttachment(ctx context.Context, attachment *articleref.ReferenceAttachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to avoid external modifications
	cp := *attachment
	r.attachments[attachment.ID] = &cp
	r.byArticle[attachment.ArticleID] = append(r.byArticle[attachment.ArticleID], attachment.ID)

	return nil
}

func (r *Repository) UpdateAttachment(ctx context.Context, attachment *articleref.ReferenceAttachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.attachments[attachment.ID]; !exists {
		return articleref.ErrAttachmentNotFound
	}

	cp := *attachment
	r.attachments[attachment.ID] = &cp

	return nil
}

func (r *Repository) RemoveAttachment(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	attachment, exists := r.attachments[id]
	if !exists {
		return articleref.ErrAttachmentNotFound
	}

	delete(r.attachments, id)

	siblings := r.byArticle[attachment.ArticleID]
	for i, siblingID := range siblings {
		if siblingID == id {
			r.byArticle[attachment.ArticleID] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}

	return nil
}

func (r *Repository) GetAttachment(ctx context.Context, id uuid.UUID) (*articleref.ReferenceAttachment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	attachment, exists := r.attachments[id]
	if !exists {
		return nil, articleref.ErrAttachmentNotFound
	}

	cp := *attachment
	return &cp, nil
}

func (r *Repository) ListByArticle(ctx context.Context, articleID uuid.UUID) ([]*articleref.ReferenceAttachment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byArticle[articleID]
	result := make([]*articleref.ReferenceAttachment, 0, len(ids))
	for _, id := range ids {
		if attachment, exists := r.attachments[id]; exists {
			cp := *attachment
			result = append(result, &cp)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Position < result[j].Position
	})

	return result, nil
}

// UpdatePositions applies the full assignment under one lock, so readers
// never observe a mixed old/new ordering.
func (r *Repository) UpdatePositions(ctx context.Context, articleID uuid.UUID, positions map[uuid.UUID]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range positions {
		attachment, exists := r.attachments[id]
		if !exists || attachment.ArticleID != articleID {
			return articleref.ErrAttachmentNotFound
		}
	}

	for id, position := range positions {
		r.attachments[id].Position = position
	}

	return nil
}
