package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"taskboard/internal/model"
)

// DocumentRepository stores schemaless documents grouped by collection path.
type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Insert(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Patch rewrites the body of an existing document inside one transaction.
// It returns ErrNotFound when the document does not exist.
func (r *DocumentRepository) Patch(ctx context.Context, collection, id string, apply func(body string) (string, error)) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc model.Document
		err := tx.Where("collection = ? AND id = ?", collection, id).First(&doc).Error
		switch {
		case err == nil:
		case errors.Is(err, gorm.ErrRecordNotFound):
			return ErrNotFound
		default:
			return fmt.Errorf("find document: %w", err)
		}

		body, err := apply(doc.Body)
		if err != nil {
			return err
		}

		res := tx.Model(&model.Document{}).
			Where("collection = ? AND id = ?", collection, id).
			Update("body", body)
		if res.Error != nil {
			return fmt.Errorf("update document: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Delete removes a document. Deleting a missing document is not an error.
func (r *DocumentRepository) Delete(ctx context.Context, collection, id string) error {
	if err := r.db.WithContext(ctx).Where("collection = ? AND id = ?", collection, id).
		Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) List(ctx context.Context, collection string) ([]model.Document, error) {
	var docs []model.Document
	if err := r.db.WithContext(ctx).Where("collection = ?", collection).
		Order("created_at, id").
		Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Owners returns the distinct owners that have at least one document.
func (r *DocumentRepository) Owners(ctx context.Context) ([]string, error) {
	var owners []string
	if err := r.db.WithContext(ctx).Model(&model.Document{}).
		Distinct("owner_id").
		Order("owner_id").
		Pluck("owner_id", &owners).Error; err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	return owners, nil
}
