package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/anjiri1684/peptide_shop/logger"
	"github.com/anjiri1684/peptide_shop/models"
	"github.com/anjiri1684/peptide_shop/monitoring"
	"github.com/anjiri1684/peptide_shop/notifications"
	"github.com/anjiri1684/peptide_shop/payments"
)

// Callback carries the fields of a gateway result notification.
type Callback struct {
	OutSum    string
	InvID     string
	Signature string
}

// OrderEvent describes a freshly confirmed order.
type OrderEvent struct {
	PayNum     int64     `json:"pay_num"`
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username"`
	Amount     int64     `json:"amount"`
	Address    string    `json:"address"`
	Items      string    `json:"items"`
	ClosedAt   time.Time `json:"closed_at"`
}

// Outcome is the result of a callback that closed a payment.
type Outcome struct {
	Payment  models.Payment
	Order    BucketView
	Credits  []Credit
	Messages []notifications.Message
}

func (o *Outcome) Event() OrderEvent {
	ev := OrderEvent{
		PayNum:     o.Payment.PayNum,
		TelegramID: o.Payment.TelegramID,
		Amount:     o.Payment.Amount,
		Address:    o.Payment.Address,
		Items:      o.Order.Items,
	}
	if o.Payment.Username != nil {
		ev.Username = *o.Payment.Username
	}
	if o.Payment.ClosedAt != nil {
		ev.ClosedAt = *o.Payment.ClosedAt
	}
	return ev
}

// CallbackService consumes each verified gateway callback exactly once.
type CallbackService struct {
	db         *gorm.DB
	ledger     *LedgerService
	settlement *SettlementService
	buckets    *BucketService
	password2  string
	adminIDs   []int64
}

func NewCallbackService(db *gorm.DB, ledger *LedgerService, settlement *SettlementService, buckets *BucketService, password2 string, adminIDs []int64) *CallbackService {
	return &CallbackService{
		db:         db,
		ledger:     ledger,
		settlement: settlement,
		buckets:    buckets,
		password2:  password2,
		adminIDs:   adminIDs,
	}
}

// Handle verifies the callback, then closes the payment, clears the buyer's
// bucket and credits referrers in one transaction. A replay returns
// ErrAlreadyClosed and changes nothing.
func (s *CallbackService) Handle(ctx context.Context, cb Callback) (*Outcome, error) {
	if !payments.VerifyResultSignature(cb.OutSum, cb.InvID, s.password2, cb.Signature) {
		monitoring.PaymentCallbacksTotal.WithLabelValues("invalid_signature").Inc()
		logger.Log.Warn("callback signature mismatch", zap.String("inv_id", cb.InvID), zap.String("out_sum", cb.OutSum))
		return nil, ErrSignatureMismatch
	}

	payNum, err := strconv.ParseInt(strings.TrimSpace(cb.InvID), 10, 64)
	if err != nil {
		monitoring.PaymentCallbacksTotal.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: InvId %q", ErrInvalidCallback, cb.InvID)
	}
	confirmed, err := parseOutSum(cb.OutSum)
	if err != nil {
		monitoring.PaymentCallbacksTotal.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: OutSum %q", ErrInvalidCallback, cb.OutSum)
	}

	var out Outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.closeTx(tx, payNum, confirmed); err != nil {
			return err
		}

		payment, err := s.ledger.getTx(tx, payNum)
		if err != nil {
			return err
		}
		out.Payment = *payment

		bucket, err := s.buckets.bucketTx(tx, payment.TelegramID)
		if errors.Is(err, ErrUserNotFound) {
			// The payment still closes; there is no chain to credit.
			logger.Log.Warn("buyer record missing for closed payment", zap.Int64("pay_num", payNum))
			return nil
		}
		if err != nil {
			return err
		}
		out.Order = s.buckets.pricing.Render(bucket)
		if err := s.buckets.clearTx(tx, payment.TelegramID); err != nil {
			return err
		}

		credits, err := s.settlement.settleTx(tx, payment.TelegramID, payment.Amount)
		if err != nil {
			return err
		}
		out.Credits = credits
		return nil
	})

	switch {
	case errors.Is(err, ErrAlreadyClosed):
		monitoring.PaymentCallbacksTotal.WithLabelValues("duplicate").Inc()
		logger.Log.Info("duplicate callback absorbed", zap.Int64("pay_num", payNum))
		return nil, ErrAlreadyClosed
	case errors.Is(err, ErrPaymentNotFound):
		monitoring.PaymentCallbacksTotal.WithLabelValues("unknown_payment").Inc()
		logger.Log.Warn("callback for unknown payment", zap.Int64("pay_num", payNum))
		return nil, ErrPaymentNotFound
	case err != nil:
		monitoring.PaymentCallbacksTotal.WithLabelValues("error").Inc()
		logger.Log.Error("failed to settle payment", zap.Int64("pay_num", payNum), zap.Error(err))
		return nil, fmt.Errorf("settle payment %d: %w", payNum, err)
	}

	if confirmed != out.Payment.Amount {
		logger.Log.Warn("confirmed amount differs from recorded price",
			zap.Int64("pay_num", payNum),
			zap.Int64("recorded", out.Payment.Amount),
			zap.Int64("confirmed", confirmed),
		)
	}

	monitoring.PaymentCallbacksTotal.WithLabelValues("settled").Inc()
	recordCredits(out.Credits)
	out.Messages = s.messages(&out)

	logger.Log.Info("payment settled",
		zap.Int64("pay_num", payNum),
		zap.Int64("amount", out.Payment.Amount),
		zap.Int("credits", len(out.Credits)),
	)
	return &out, nil
}

func (s *CallbackService) messages(out *Outcome) []notifications.Message {
	p := out.Payment
	handle := "—"
	if p.Username != nil && *p.Username != "" {
		handle = "@" + html.EscapeString(*p.Username)
	}
	address := html.EscapeString(p.Address)

	msgs := make([]notifications.Message, 0, len(s.adminIDs)+1+len(out.Credits))
	for _, id := range s.adminIDs {
		msgs = append(msgs, notifications.Message{
			ChatID: id,
			Text: fmt.Sprintf("✅ New order #%d!\nCustomer: <b>%s</b>\n💸 Amount: <u>%d₽</u>\n🛒 Order:\n%s📍 Address: <code>%s</code>",
				p.PayNum, handle, p.Amount, out.Order.Items, address),
		})
	}
	msgs = append(msgs, notifications.Message{
		ChatID: p.TelegramID,
		Text: fmt.Sprintf("✅ Your order has been placed!\n💸 Order total: <u>%d₽</u>\n🛒 Order:\n%s🤝 Our team will contact you shortly to confirm the details!",
			p.Amount, out.Order.Items),
	})
	for _, c := range out.Credits {
		msgs = append(msgs, notifications.Message{ChatID: c.TelegramID, Text: c.Text})
	}
	return msgs
}

// parseOutSum truncates the decimal OutSum to whole rubles.
func parseOutSum(raw string) (int64, error) {
	whole, _, _ := strings.Cut(strings.TrimSpace(raw), ".")
	return strconv.ParseInt(whole, 10, 64)
}
