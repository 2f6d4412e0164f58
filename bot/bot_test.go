package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	config "github.com/anjiri1684/peptide_shop/configs"
	"github.com/anjiri1684/peptide_shop/database"
	"github.com/anjiri1684/peptide_shop/services"
)

const (
	rootID  int64 = 1000
	adminID int64 = 1
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.mu.Lock()
		f.sent = append(f.sent, m)
		f.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no message sent")
	}
	return f.sent[len(f.sent)-1]
}

type linker struct{}

func (linker) PaymentLink(cost int64, invID int64) (string, error) {
	return fmt.Sprintf("https://pay.test/%d", invID), nil
}

type harness struct {
	bot       *Bot
	sender    *fakeSender
	referrals *services.ReferralService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pricing := services.NewPricingService(config.DefaultPricing(), config.DefaultCatalog())
	referrals := services.NewReferralService(db, []int64{rootID}, time.Now)
	ledger := services.NewLedgerService(db, time.Now)
	buckets := services.NewBucketService(db, pricing)
	checkout := services.NewCheckoutService(referrals, buckets, ledger, linker{})

	sender := &fakeSender{}
	b := New(sender, Dependencies{
		Referrals: referrals,
		Buckets:   buckets,
		Checkout:  checkout,
		Catalog:   config.DefaultCatalog(),
		BotName:   "peptide_bot",
		AdminIDs:  []int64{adminID},
	})
	return &harness{bot: b, sender: sender, referrals: referrals}
}

func (h *harness) text(userID int64, username, text string) {
	msg := &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: userID},
		From: &tgbotapi.User{ID: userID, UserName: username},
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	h.bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})
}

func (h *harness) press(userID int64, data string) {
	h.bot.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "q",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}})
}

func TestStartRegistersWithReferrer(t *testing.T) {
	h := newHarness(t)
	h.text(rootID, "root", "/start")
	h.text(2001, "partner", fmt.Sprintf("/start %d", rootID))
	h.text(2001, "partner", "/start 999") // second /start keeps the first referrer

	u, err := h.referrals.GetUser(context.Background(), 2001)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.ReferrerID == nil || *u.ReferrerID != rootID || u.ReferralTier != 2 {
		t.Fatalf("user = %+v", u)
	}
	if !strings.Contains(h.sender.last(t).Text, "Welcome") {
		t.Errorf("reply = %q", h.sender.last(t).Text)
	}
}

func TestBucketAndCheckoutFlow(t *testing.T) {
	h := newHarness(t)
	h.text(3001, "buyer", "/start")

	h.press(3001, "add:2")
	h.press(3001, "add:2")
	if got := h.sender.last(t).Text; !strings.Contains(got, "9400₽") {
		t.Fatalf("bucket reply = %q", got)
	}

	h.press(3001, "add:9")
	if got := h.sender.last(t).Text; !strings.Contains(got, "no such position") {
		t.Errorf("invalid position reply = %q", got)
	}

	h.press(3001, "checkout")
	if got := h.sender.last(t).Text; !strings.Contains(got, "delivery address") {
		t.Fatalf("checkout prompt = %q", got)
	}

	h.text(3001, "buyer", "no")
	if got := h.sender.last(t).Text; !strings.Contains(got, "full delivery address") {
		t.Fatalf("short address reply = %q", got)
	}

	h.text(3001, "buyer", "Moscow, Tverskaya 7, apt 3")
	reply := h.sender.last(t)
	if !strings.Contains(reply.Text, "Order #1") || !strings.Contains(reply.Text, "Tverskaya") {
		t.Fatalf("invoice reply = %q", reply.Text)
	}
	kb, ok := reply.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || kb.InlineKeyboard[0][0].URL == nil || *kb.InlineKeyboard[0][0].URL != "https://pay.test/1" {
		t.Fatalf("pay keyboard = %+v", reply.ReplyMarkup)
	}

	// Plain text after the order is not taken as another address.
	before := len(h.sender.sent)
	h.text(3001, "buyer", "thanks")
	if len(h.sender.sent) != before {
		t.Error("bot replied to plain text")
	}
}

func TestCheckoutEmptyBucket(t *testing.T) {
	h := newHarness(t)
	h.text(3001, "buyer", "/start")
	h.text(3001, "buyer", "/checkout")
	if got := h.sender.last(t).Text; !strings.Contains(got, "no items") {
		t.Fatalf("reply = %q", got)
	}
}

func TestUnregisteredUserIsAskedToStart(t *testing.T) {
	h := newHarness(t)
	h.press(4242, "add:1")
	if got := h.sender.last(t).Text; !strings.Contains(got, "/start") {
		t.Fatalf("reply = %q", got)
	}
}

func TestReferralCabinet(t *testing.T) {
	h := newHarness(t)
	h.text(rootID, "root", "/start")
	h.text(2001, "a", "/start 1000")
	h.text(2002, "b", "/start 1000")

	h.text(rootID, "root", "/referral")
	got := h.sender.last(t).Text
	if !strings.Contains(got, "Invited users: <b>2</b>") || !strings.Contains(got, "https://t.me/peptide_bot?start=1000") {
		t.Fatalf("cabinet = %q", got)
	}
}

func TestAdminCommands(t *testing.T) {
	h := newHarness(t)
	h.text(rootID, "root", "/start")
	h.text(2001, "shopper", "/start 1000")

	before := len(h.sender.sent)
	h.text(2001, "shopper", "/admin")
	if len(h.sender.sent) != before {
		t.Fatal("non-admin got a reply to /admin")
	}

	h.text(adminID, "boss", "/admin")
	if got := h.sender.last(t).Text; !strings.Contains(got, "Total users: <b>2</b>") {
		t.Errorf("stats = %q", got)
	}

	h.text(adminID, "boss", "/balance @shopper")
	if got := h.sender.last(t).Text; !strings.Contains(got, "@shopper is <u>0.00₽</u>") {
		t.Errorf("balance = %q", got)
	}
	h.text(adminID, "boss", "/balance @ghost")
	if got := h.sender.last(t).Text; !strings.Contains(got, "No user") {
		t.Errorf("missing user = %q", got)
	}
}
