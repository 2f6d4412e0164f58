package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/anjiri1684/peptide_shop/logger"
)

// PaymentLinker builds the gateway URL the buyer pays through.
type PaymentLinker interface {
	PaymentLink(cost int64, invID int64) (string, error)
}

type Invoice struct {
	PayNum int64
	Amount int64
	Link   string
	View   BucketView
}

type checkoutRequest struct {
	Address string `validate:"required,min=5,max=500"`
}

var validate = validator.New()

// CheckoutService turns the current bucket into a pending ledger payment.
type CheckoutService struct {
	referrals *ReferralService
	buckets   *BucketService
	ledger    *LedgerService
	gateway   PaymentLinker
}

func NewCheckoutService(referrals *ReferralService, buckets *BucketService, ledger *LedgerService, gateway PaymentLinker) *CheckoutService {
	return &CheckoutService{referrals: referrals, buckets: buckets, ledger: ledger, gateway: gateway}
}

func (s *CheckoutService) Checkout(ctx context.Context, telegramID int64, address string) (*Invoice, error) {
	address = strings.TrimSpace(address)
	if err := validate.Struct(checkoutRequest{Address: address}); err != nil {
		return nil, err
	}

	user, err := s.referrals.GetUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	view, err := s.buckets.View(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if view.Empty {
		return nil, ErrEmptyBucket
	}

	payNum, err := s.ledger.Create(ctx, view.Total, address, user.Handle(), telegramID)
	if err != nil {
		return nil, err
	}

	link, err := s.gateway.PaymentLink(view.Total, payNum)
	if err != nil {
		return nil, fmt.Errorf("payment link for %d: %w", payNum, err)
	}

	logger.Log.Info("checkout started", zap.Int64("pay_num", payNum), zap.Int64("amount", view.Total))
	return &Invoice{PayNum: payNum, Amount: view.Total, Link: link, View: view}, nil
}
