package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anjiri1684/peptide_shop/logger"
	"github.com/anjiri1684/peptide_shop/models"
	"github.com/anjiri1684/peptide_shop/monitoring"
)

const paymentSequence = "payments"

// LedgerService records payment requests and their single open→closed transition.
type LedgerService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLedgerService(db *gorm.DB, now func() time.Time) *LedgerService {
	return &LedgerService{db: db, now: now}
}

// Create stores a new open payment and returns its pay number.
func (s *LedgerService) Create(ctx context.Context, amount int64, address, username string, telegramID int64) (int64, error) {
	var payNum int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		num, err := s.nextPayNum(tx)
		if err != nil {
			return err
		}

		payment := models.Payment{
			PayNum:     num,
			TelegramID: telegramID,
			Amount:     amount,
			Address:    address,
		}
		if username != "" {
			payment.Username = &username
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		payNum = num
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("create payment: %w", err)
	}

	monitoring.PaymentsCreatedTotal.Inc()
	logger.Log.Info("payment created",
		zap.Int64("pay_num", payNum),
		zap.Int64("telegram_id", telegramID),
		zap.Int64("amount", amount),
	)
	return payNum, nil
}

// nextPayNum increments the payments sequence row. The UPDATE holds the row
// lock until the surrounding transaction ends, so concurrent callers serialize.
func (s *LedgerService) nextPayNum(tx *gorm.DB) (int64, error) {
	bump := func() (int64, error) {
		res := tx.Model(&models.PaySequence{}).
			Where("name = ?", paymentSequence).
			Update("last_value", gorm.Expr("last_value + ?", 1))
		return res.RowsAffected, res.Error
	}

	affected, err := bump()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		// First payment on this database: continue from existing rows.
		var maxNum int64
		if err := tx.Model(&models.Payment{}).Select("COALESCE(MAX(pay_num), 0)").Row().Scan(&maxNum); err != nil {
			return 0, err
		}
		seq := models.PaySequence{Name: paymentSequence, LastValue: maxNum}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
			return 0, err
		}
		if affected, err = bump(); err != nil {
			return 0, err
		}
		if affected == 0 {
			return 0, errors.New("payment sequence row missing")
		}
	}

	var seq models.PaySequence
	if err := tx.Where("name = ?", paymentSequence).First(&seq).Error; err != nil {
		return 0, err
	}
	return seq.LastValue, nil
}

func (s *LedgerService) Get(ctx context.Context, payNum int64) (*models.Payment, error) {
	return s.getTx(s.db.WithContext(ctx), payNum)
}

func (s *LedgerService) getTx(tx *gorm.DB, payNum int64) (*models.Payment, error) {
	var payment models.Payment
	if err := tx.Where("pay_num = ?", payNum).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (s *LedgerService) IsClosed(ctx context.Context, payNum int64) (bool, error) {
	payment, err := s.Get(ctx, payNum)
	if err != nil {
		return false, err
	}
	return payment.Closed, nil
}

// Close marks the payment closed in its own transaction.
func (s *LedgerService) Close(ctx context.Context, payNum, confirmedAmount int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.closeTx(tx, payNum, confirmedAmount)
	})
}

// closeTx only updates a row that is still open; a second close reports ErrAlreadyClosed.
func (s *LedgerService) closeTx(tx *gorm.DB, payNum, confirmedAmount int64) error {
	res := tx.Model(&models.Payment{}).
		Where("pay_num = ? AND closed = ?", payNum, false).
		Updates(map[string]interface{}{
			"closed":           true,
			"closed_at":        s.now(),
			"confirmed_amount": confirmedAmount,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := tx.Model(&models.Payment{}).Where("pay_num = ?", payNum).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrPaymentNotFound
	}
	return ErrAlreadyClosed
}
