package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"my-page/internal/model"

	"gorm.io/gorm"
)

// GormBackend stores documents as rows of the documents table.
type GormBackend struct{ db *gorm.DB }

func NewGormBackend(db *gorm.DB) (*GormBackend, error) {
	if err := db.AutoMigrate(&model.DocumentRow{}); err != nil {
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	return &GormBackend{db: db}, nil
}

func (b *GormBackend) Name() string { return "mysql" }

func (b *GormBackend) Read(ctx context.Context, t model.DocType) ([]byte, time.Time, error) {
	var row model.DocumentRow
	err := b.db.WithContext(ctx).Where("type = ?", t.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("query document: %w", err)
	}
	return []byte(row.Body), row.UpdatedAt, nil
}

func (b *GormBackend) Write(ctx context.Context, t model.DocType, data []byte) error {
	var existing model.DocumentRow
	err := b.db.WithContext(ctx).Where("type = ?", t.String()).First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return b.db.WithContext(ctx).Create(&model.DocumentRow{
			Type: t.String(), Body: string(data), Revision: Revision(data),
		}).Error
	}
	if err != nil {
		return fmt.Errorf("query document: %w", err)
	}

	return b.db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
		"body":     string(data),
		"revision": Revision(data),
	}).Error
}
