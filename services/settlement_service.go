package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	config "github.com/anjiri1684/peptide_shop/configs"
	"github.com/anjiri1684/peptide_shop/logger"
	"github.com/anjiri1684/peptide_shop/models"
	"github.com/anjiri1684/peptide_shop/monitoring"
)

// Credit is one commission payout produced by a settlement.
type Credit struct {
	TelegramID int64
	Tier       int
	Amount     decimal.Decimal
	Text       string
}

// SettlementService distributes commission over the buyer's referral chain.
type SettlementService struct {
	db        *gorm.DB
	referrals *ReferralService
	rates     config.CommissionSchedule
}

func NewSettlementService(db *gorm.DB, referrals *ReferralService, rates config.CommissionSchedule) *SettlementService {
	return &SettlementService{db: db, referrals: referrals, rates: rates}
}

// Settle credits the buyer's upstream referrers for a sale of price rubles.
func (s *SettlementService) Settle(ctx context.Context, buyerID, price int64) ([]Credit, error) {
	var credits []Credit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.settleTx(tx, buyerID, price)
		credits = c
		return err
	})
	if err != nil {
		return nil, err
	}
	recordCredits(credits)
	return credits, nil
}

// settleTx applies all credits inside tx so they commit or roll back together.
// Credits are ordered direct referrer first, then the root above it.
func (s *SettlementService) settleTx(tx *gorm.DB, buyerID, price int64) ([]Credit, error) {
	buyer, err := findUserTx(tx, buyerID)
	if err != nil {
		return nil, err
	}
	if buyer.ReferrerID == nil {
		return nil, nil
	}

	inviter, err := findUserTx(tx, *buyer.ReferrerID)
	if errors.Is(err, ErrUserNotFound) {
		logger.Log.Warn("buyer referrer record missing", zap.Int64("buyer", buyerID), zap.Int64("referrer", *buyer.ReferrerID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	tier, err := s.referrals.resolveTierTx(tx, inviter)
	if err != nil {
		return nil, err
	}

	amount := decimal.NewFromInt(price)
	var credits []Credit

	switch tier {
	case models.TierPartner:
		direct := amount.Mul(s.rates.SecondTierDirect)
		if err := creditTx(tx, inviter.TelegramID, direct); err != nil {
			return nil, err
		}
		credits = append(credits, Credit{
			TelegramID: inviter.TelegramID,
			Tier:       tier,
			Amount:     direct,
			Text:       fmt.Sprintf("🎉 Congratulations! Your referral made a purchase of <u>%d₽</u>, your referral balance was credited with <u>%s₽</u>", price, formatAmount(direct)),
		})

		if inviter.ReferrerID == nil {
			break
		}
		root, err := findUserTx(tx, *inviter.ReferrerID)
		if errors.Is(err, ErrUserNotFound) {
			logger.Log.Warn("partner upstream record missing, crediting partner only",
				zap.Int64("partner", inviter.TelegramID), zap.Int64("upstream", *inviter.ReferrerID))
			break
		}
		if err != nil {
			return nil, err
		}
		rootTier, err := s.referrals.resolveTierTx(tx, root)
		if err != nil {
			return nil, err
		}
		if rootTier != models.TierRoot {
			break
		}

		share := amount.Mul(s.rates.SecondTierRoot)
		if err := creditTx(tx, root.TelegramID, share); err != nil {
			return nil, err
		}
		credits = append(credits, Credit{
			TelegramID: root.TelegramID,
			Tier:       rootTier,
			Amount:     share,
			Text:       fmt.Sprintf("🎉 Congratulations! A user invited by your partner made a purchase of <u>%d₽</u>, your referral balance was credited with <u>%s₽</u>", price, formatAmount(share)),
		})

	case models.TierRoot:
		direct := amount.Mul(s.rates.FirstTierDirect)
		if err := creditTx(tx, inviter.TelegramID, direct); err != nil {
			return nil, err
		}
		credits = append(credits, Credit{
			TelegramID: inviter.TelegramID,
			Tier:       tier,
			Amount:     direct,
			Text:       fmt.Sprintf("🎉 Congratulations! Your referral made a purchase of <u>%d₽</u>, your referral balance was credited with <u>%s₽</u>", price, formatAmount(direct)),
		})
	}

	return credits, nil
}

// creditTx is an in-database increment so concurrent settlements never lose an update.
func creditTx(tx *gorm.DB, telegramID int64, amount decimal.Decimal) error {
	res := tx.Model(&models.User{}).
		Where("telegram_id = ?", telegramID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func findUserTx(tx *gorm.DB, telegramID int64) (*models.User, error) {
	var user models.User
	if err := tx.Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func recordCredits(credits []Credit) {
	for _, c := range credits {
		monitoring.CommissionCreditedTotal.WithLabelValues(strconv.Itoa(c.Tier)).Add(c.Amount.InexactFloat64())
		logger.Log.Info("referral commission credited",
			zap.Int64("telegram_id", c.TelegramID),
			zap.String("amount", c.Amount.String()),
		)
	}
}

func formatAmount(d decimal.Decimal) string {
	return d.Round(2).String()
}
