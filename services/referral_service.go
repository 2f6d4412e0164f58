package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anjiri1684/peptide_shop/logger"
	"github.com/anjiri1684/peptide_shop/models"
	"github.com/anjiri1684/peptide_shop/monitoring"
)

// ReferralService owns user registration, referrer links and referral tiers.
type ReferralService struct {
	db    *gorm.DB
	roots map[int64]struct{}
	now   func() time.Time
}

func NewReferralService(db *gorm.DB, rootIDs []int64, now func() time.Time) *ReferralService {
	roots := make(map[int64]struct{}, len(rootIDs))
	for _, id := range rootIDs {
		roots[id] = struct{}{}
	}
	return &ReferralService{db: db, roots: roots, now: now}
}

func (s *ReferralService) IsRoot(telegramID int64) bool {
	_, ok := s.roots[telegramID]
	return ok
}

// Register creates the user once. It returns false without touching anything
// when the user already exists.
func (s *ReferralService) Register(ctx context.Context, telegramID int64, username string, referrerID *int64) (bool, error) {
	if referrerID != nil && *referrerID == telegramID {
		referrerID = nil
	}

	created := false
	var tier int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("telegram_id = ?", telegramID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		t, err := s.computeTier(tx, telegramID, referrerID)
		if err != nil {
			return err
		}

		user := models.User{
			TelegramID:   telegramID,
			ReferrerID:   referrerID,
			ReferralTier: t,
			TierResolved: true,
			Bucket:       datatypes.NewJSONType(models.Bucket{}),
			RegisteredAt: s.now(),
		}
		if username != "" {
			user.Username = &username
		}

		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "telegram_id"}},
			DoNothing: true,
		}).Create(&user)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		tier = t
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("register user %d: %w", telegramID, err)
	}

	if created {
		monitoring.RegistrationsTotal.WithLabelValues(strconv.Itoa(tier)).Inc()
		logger.Log.Info("user registered",
			zap.Int64("telegram_id", telegramID),
			zap.Int("tier", tier),
			zap.Bool("referred", referrerID != nil),
		)
	}
	return created, nil
}

// ResolveTier returns the user's tier, computing and persisting it for
// records that were created before tiers existed.
func (s *ReferralService) ResolveTier(ctx context.Context, telegramID int64) (int, error) {
	var tier int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		t, err := s.resolveTierTx(tx, &user)
		tier = t
		return err
	})
	return tier, err
}

// resolveTierTx computes the tier of an unresolved record. A resolved record is
// only rewritten when it is stale: a configured root not yet at tier 1, or a
// tier-0 user whose referrer has since become a root.
func (s *ReferralService) resolveTierTx(tx *gorm.DB, user *models.User) (int, error) {
	tier, changed, err := s.expectedTier(tx, user)
	if err != nil || !changed {
		return tier, err
	}

	err = tx.Model(&models.User{}).
		Where("telegram_id = ? AND referral_tier = ? AND tier_resolved = ?", user.TelegramID, user.ReferralTier, user.TierResolved).
		Updates(map[string]interface{}{"referral_tier": tier, "tier_resolved": true}).Error
	if err != nil {
		return 0, err
	}

	logger.Log.Info("referral tier backfilled",
		zap.Int64("telegram_id", user.TelegramID),
		zap.Int("from", user.ReferralTier),
		zap.Int("tier", tier),
		zap.Bool("was_resolved", user.TierResolved),
	)
	user.ReferralTier = tier
	user.TierResolved = true
	return tier, nil
}

func (s *ReferralService) expectedTier(tx *gorm.DB, user *models.User) (int, bool, error) {
	if !user.TierResolved {
		tier, err := s.computeTier(tx, user.TelegramID, user.ReferrerID)
		return tier, err == nil, err
	}

	switch {
	case user.ReferralTier == models.TierRoot:
		return user.ReferralTier, false, nil
	case s.IsRoot(user.TelegramID):
		return models.TierRoot, true, nil
	case user.ReferralTier == models.TierCustomer && user.ReferrerID != nil:
		root, err := s.isRootReferrer(tx, *user.ReferrerID)
		if err != nil {
			return 0, false, err
		}
		if root {
			return models.TierPartner, true, nil
		}
	}
	return user.ReferralTier, false, nil
}

func (s *ReferralService) computeTier(tx *gorm.DB, telegramID int64, referrerID *int64) (int, error) {
	if s.IsRoot(telegramID) {
		return models.TierRoot, nil
	}
	if referrerID == nil {
		return models.TierCustomer, nil
	}

	root, err := s.isRootReferrer(tx, *referrerID)
	if err != nil {
		return 0, err
	}
	if root {
		return models.TierPartner, nil
	}
	return models.TierCustomer, nil
}

// isRootReferrer reports whether the user holds tier 1. Tier 1 only comes from
// the configured root set, so a stored tier never needs a deeper walk.
func (s *ReferralService) isRootReferrer(tx *gorm.DB, telegramID int64) (bool, error) {
	if s.IsRoot(telegramID) {
		return true, nil
	}

	var referrer models.User
	err := tx.Select("telegram_id", "referral_tier", "tier_resolved").
		Where("telegram_id = ?", telegramID).First(&referrer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return referrer.TierResolved && referrer.ReferralTier == models.TierRoot, nil
}

// ResolvePending backfills up to limit unresolved records and returns how many were updated.
func (s *ReferralService) ResolvePending(ctx context.Context, limit int) (int, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("tier_resolved = ?", false).
		Order("telegram_id").
		Limit(limit).
		Pluck("telegram_id", &ids).Error
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if _, err := s.ResolveTier(ctx, id); err != nil {
			return 0, fmt.Errorf("resolve tier for %d: %w", id, err)
		}
	}
	return len(ids), nil
}

func (s *ReferralService) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *ReferralService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CountReferrals returns how many users registered with telegramID as referrer.
func (s *ReferralService) CountReferrals(ctx context.Context, telegramID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("referrer_id = ?", telegramID).Count(&count).Error
	return count, err
}

// Balances lists every user ordered by balance, largest first.
func (s *ReferralService) Balances(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Select("telegram_id", "username", "referral_tier", "balance").
		Order("balance desc").Order("telegram_id").
		Find(&users).Error
	return users, err
}

type RegistrationStats struct {
	Total    int64 `json:"total"`
	Referred int64 `json:"referred"`
	Today    int64 `json:"today"`
	Week     int64 `json:"week"`
	Month    int64 `json:"month"`
}

// Stats counts registrations; day, week and month boundaries follow the clock's location.
func (s *ReferralService) Stats(ctx context.Context) (*RegistrationStats, error) {
	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekStart := dayStart.AddDate(0, 0, -((int(now.Weekday()) + 6) % 7))
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	db := s.db.WithContext(ctx)
	var stats RegistrationStats

	if err := db.Model(&models.User{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.User{}).Where("referrer_id IS NOT NULL").Count(&stats.Referred).Error; err != nil {
		return nil, err
	}

	windows := []struct {
		from, to time.Time
		dst      *int64
	}{
		{dayStart, dayStart.AddDate(0, 0, 1), &stats.Today},
		{weekStart, weekStart.AddDate(0, 0, 7), &stats.Week},
		{monthStart, monthStart.AddDate(0, 1, 0), &stats.Month},
	}
	for _, w := range windows {
		err := db.Model(&models.User{}).
			Where("registered_at >= ? AND registered_at < ?", w.from, w.to).
			Count(w.dst).Error
		if err != nil {
			return nil, err
		}
	}
	return &stats, nil
}
