package services

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anjiri1684/peptide_shop/models"
)

// BucketService mutates the per-user bucket under a row lock.
type BucketService struct {
	db      *gorm.DB
	pricing *PricingService
}

func NewBucketService(db *gorm.DB, pricing *PricingService) *BucketService {
	return &BucketService{db: db, pricing: pricing}
}

func (s *BucketService) Add(ctx context.Context, telegramID int64, pos models.Position) (BucketView, error) {
	return s.mutate(ctx, telegramID, func(b models.Bucket) (models.Bucket, error) {
		return b.Add(pos)
	})
}

func (s *BucketService) Remove(ctx context.Context, telegramID int64, pos models.Position) (BucketView, error) {
	return s.mutate(ctx, telegramID, func(b models.Bucket) (models.Bucket, error) {
		return b.Remove(pos)
	})
}

func (s *BucketService) Clear(ctx context.Context, telegramID int64) error {
	return s.clearTx(s.db.WithContext(ctx), telegramID)
}

func (s *BucketService) View(ctx context.Context, telegramID int64) (BucketView, error) {
	bucket, err := s.bucketTx(s.db.WithContext(ctx), telegramID)
	if err != nil {
		return BucketView{}, err
	}
	return s.pricing.Render(bucket), nil
}

func (s *BucketService) mutate(ctx context.Context, telegramID int64, fn func(models.Bucket) (models.Bucket, error)) (BucketView, error) {
	var next models.Bucket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("telegram_id", "bucket").
			Where("telegram_id = ?", telegramID).
			First(&user).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		next, err = fn(user.Bucket.Data())
		if err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("telegram_id = ?", telegramID).
			Update("bucket", datatypes.NewJSONType(next)).Error
	})
	if err != nil {
		return BucketView{}, err
	}
	return s.pricing.Render(next), nil
}

func (s *BucketService) bucketTx(tx *gorm.DB, telegramID int64) (models.Bucket, error) {
	var user models.User
	if err := tx.Select("telegram_id", "bucket").Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user.Bucket.Data(), nil
}

func (s *BucketService) clearTx(tx *gorm.DB, telegramID int64) error {
	res := tx.Model(&models.User{}).
		Where("telegram_id = ?", telegramID).
		Update("bucket", datatypes.NewJSONType(models.Bucket{}))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
