package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	config "github.com/anjiri1684/peptide_shop/configs"
	"github.com/anjiri1684/peptide_shop/logger"
	"github.com/anjiri1684/peptide_shop/models"
	"github.com/anjiri1684/peptide_shop/services"
	"github.com/anjiri1684/peptide_shop/utils"
)

const updateTimeout = 30 * time.Second

// Sender is the part of *tgbotapi.BotAPI the bot talks through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Dependencies struct {
	Referrals *services.ReferralService
	Buckets   *services.BucketService
	Checkout  *services.CheckoutService
	Catalog   config.Catalog
	BotName   string
	AdminIDs  []int64
}

// Bot routes Telegram updates to the shop services.
type Bot struct {
	api  Sender
	deps Dependencies

	admins map[int64]struct{}

	// chats waiting for a delivery address after checkout was pressed
	awaitingMu sync.Mutex
	awaiting   map[int64]bool
}

func New(api Sender, deps Dependencies) *Bot {
	admins := make(map[int64]struct{}, len(deps.AdminIDs))
	for _, id := range deps.AdminIDs {
		admins[id] = struct{}{}
	}
	return &Bot{
		api:      api,
		deps:     deps,
		admins:   admins,
		awaiting: make(map[int64]bool),
	}
}

// Run handles updates until ctx is cancelled or the channel closes, one goroutine per update.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				uctx, cancel := context.WithTimeout(ctx, updateTimeout)
				defer cancel()
				b.HandleUpdate(uctx, u)
			}(update)
		}
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !msg.IsCommand() {
		if b.takeAwaiting(userID) {
			b.checkout(ctx, chatID, userID, msg.Text)
		}
		return
	}
	b.setAwaiting(userID, false)

	switch msg.Command() {
	case "start":
		b.start(ctx, chatID, msg.From, msg.CommandArguments())
	case "catalog":
		b.send(chatID, "🛒 Choose a peptide to add to your bucket 👇", catalogKeyboard(b.deps.Catalog))
	case "bucket":
		b.showBucket(ctx, chatID, userID)
	case "checkout":
		b.askAddress(ctx, chatID, userID)
	case "referral":
		b.referralCabinet(ctx, chatID, userID)
	case "admin":
		if b.isAdmin(userID) {
			b.adminStats(ctx, chatID)
		}
	case "balance":
		if b.isAdmin(userID) {
			b.adminBalance(ctx, chatID, msg.CommandArguments())
		}
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.From == nil || q.Message == nil || q.Message.Chat == nil {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		logger.Log.Debug("failed to answer callback", zap.Error(err))
	}

	userID := q.From.ID
	chatID := q.Message.Chat.ID
	action, arg, _ := strings.Cut(q.Data, ":")

	switch action {
	case cbAdd, cbRemove:
		pos, err := strconv.Atoi(arg)
		if err != nil {
			return
		}
		var view services.BucketView
		if action == cbAdd {
			view, err = b.deps.Buckets.Add(ctx, userID, models.Position(pos))
		} else {
			view, err = b.deps.Buckets.Remove(ctx, userID, models.Position(pos))
		}
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.send(chatID, view.Text, bucketKeyboard(view.Bucket))
	case cbClear:
		if err := b.deps.Buckets.Clear(ctx, userID); err != nil {
			b.replyError(chatID, err)
			return
		}
		b.send(chatID, "🧹 Your bucket is now empty", bucketKeyboard(nil))
	case cbCheckout:
		b.askAddress(ctx, chatID, userID)
	case cbBucket:
		b.showBucket(ctx, chatID, userID)
	case cbCatalog:
		b.send(chatID, "🛒 Choose a peptide to add to your bucket 👇", catalogKeyboard(b.deps.Catalog))
	case cbReferral:
		b.referralCabinet(ctx, chatID, userID)
	}
}

func (b *Bot) start(ctx context.Context, chatID int64, from *tgbotapi.User, payload string) {
	referrer := utils.ParseStartPayload(payload, from.ID)
	if _, err := b.deps.Referrals.Register(ctx, from.ID, from.UserName, referrer); err != nil {
		logger.Log.Error("failed to register user", zap.Int64("telegram_id", from.ID), zap.Error(err))
		b.send(chatID, "⚠️ Something went wrong, please try again later", nil)
		return
	}
	b.send(chatID, "👋 Welcome to <b>BIO ACTIVE</b>!\n\nChoose what you are interested in 👇", mainKeyboard())
}

func (b *Bot) showBucket(ctx context.Context, chatID, userID int64) {
	view, err := b.deps.Buckets.View(ctx, userID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.send(chatID, view.Text, bucketKeyboard(view.Bucket))
}

func (b *Bot) askAddress(ctx context.Context, chatID, userID int64) {
	view, err := b.deps.Buckets.View(ctx, userID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if view.Empty {
		b.send(chatID, view.Text, bucketKeyboard(nil))
		return
	}
	b.setAwaiting(userID, true)
	b.send(chatID, "📍 Send the delivery address for your order in the next message", nil)
}

func (b *Bot) checkout(ctx context.Context, chatID, userID int64, address string) {
	invoice, err := b.deps.Checkout.Checkout(ctx, userID, address)
	var verr validator.ValidationErrors
	switch {
	case errors.As(err, &verr):
		b.setAwaiting(userID, true)
		b.send(chatID, "📍 Please send the full delivery address: city, street, house and apartment", nil)
		return
	case err != nil:
		b.replyError(chatID, err)
		return
	}

	text := fmt.Sprintf("🧾 Order #%d\n\n%s\n\n📍 Address: <code>%s</code>\n\nPay using the button below 👇",
		invoice.PayNum, invoice.View.Text, html.EscapeString(strings.TrimSpace(address)))
	b.send(chatID, text, payKeyboard(invoice.Link))
}

func (b *Bot) referralCabinet(ctx context.Context, chatID, userID int64) {
	user, err := b.deps.Referrals.GetUser(ctx, userID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	count, err := b.deps.Referrals.CountReferrals(ctx, userID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	link := utils.ReferralLink(b.deps.BotName, userID)
	text := fmt.Sprintf("👤 Your referral cabinet\n\n👥 Invited users: <b>%d</b>\n💰 Balance: <u>%s₽</u>\n\n🔗 Your link: %s",
		count, user.Balance.StringFixed(2), link)
	b.send(chatID, text, referralKeyboard(link))
}

func (b *Bot) adminStats(ctx context.Context, chatID int64) {
	stats, err := b.deps.Referrals.Stats(ctx)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	text := fmt.Sprintf("📊 Bot user statistics:\n\n👤 Total users: <b>%d</b>\n🔗 Came via referral links: <b>%d</b>\n\n📅 Joined today: <b>%d</b>\n📅 Joined this week: <b>%d</b>\n📅 Joined this month: <b>%d</b>",
		stats.Total, stats.Referred, stats.Today, stats.Week, stats.Month)
	b.send(chatID, text, nil)
}

func (b *Bot) adminBalance(ctx context.Context, chatID int64, arg string) {
	handle, ok := utils.ParseHandle(arg)
	if !ok {
		b.send(chatID, "Usage: /balance @username", nil)
		return
	}
	user, err := b.deps.Referrals.GetByUsername(ctx, handle)
	if errors.Is(err, services.ErrUserNotFound) {
		b.send(chatID, "❌ No user with this username was found", nil)
		return
	}
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.send(chatID, fmt.Sprintf("The referral balance of @%s is <u>%s₽</u>", html.EscapeString(handle), user.Balance.StringFixed(2)), nil)
}

func (b *Bot) replyError(chatID int64, err error) {
	var text string
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		text = "Press /start to begin"
	case errors.Is(err, services.ErrInvalidPosition):
		text = "❌ There is no such position in the catalog"
	case errors.Is(err, services.ErrQuantityLimit):
		text = "❌ You have reached the quantity limit for this position"
	case errors.Is(err, services.ErrPositionNotInBucket):
		text = "This position is no longer in your bucket"
	case errors.Is(err, services.ErrEmptyBucket):
		text = "😢 Unfortunately there are no items in your bucket"
	default:
		logger.Log.Error("bot request failed", zap.Int64("chat_id", chatID), zap.Error(err))
		text = "⚠️ Something went wrong, please try again later"
	}
	b.send(chatID, text, nil)
}

func (b *Bot) send(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		logger.Log.Warn("failed to send bot message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	_, ok := b.admins[userID]
	return ok
}

func (b *Bot) setAwaiting(userID int64, v bool) {
	b.awaitingMu.Lock()
	defer b.awaitingMu.Unlock()
	if v {
		b.awaiting[userID] = true
	} else {
		delete(b.awaiting, userID)
	}
}

// takeAwaiting reports whether userID was waiting for an address and clears the flag.
func (b *Bot) takeAwaiting(userID int64) bool {
	b.awaitingMu.Lock()
	defer b.awaitingMu.Unlock()
	ok := b.awaiting[userID]
	delete(b.awaiting, userID)
	return ok
}
