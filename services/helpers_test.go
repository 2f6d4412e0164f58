package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	config "github.com/anjiri1684/peptide_shop/configs"
	"github.com/anjiri1684/peptide_shop/database"
	"github.com/anjiri1684/peptide_shop/models"
)

const (
	rootID     int64 = 1000
	password2        = "result-secret"
	adminChat1 int64 = 1
	adminChat2 int64 = 2
)

var msk = time.FixedZone("MSK", 3*60*60)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakeLinker struct{}

func (fakeLinker) PaymentLink(cost int64, invID int64) (string, error) {
	return fmt.Sprintf("https://pay.test/%d?sum=%d", invID, cost), nil
}

type testEnv struct {
	db         *gorm.DB
	clock      *testClock
	pricing    *PricingService
	referrals  *ReferralService
	ledger     *LedgerService
	settlement *SettlementService
	buckets    *BucketService
	checkout   *CheckoutService
	callbacks  *CallbackService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// A single connection keeps the in-memory database alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithRates(t, config.DefaultCommission())
}

func newTestEnvWithRates(t *testing.T, rates config.CommissionSchedule) *testEnv {
	t.Helper()
	db := newTestDB(t)
	clock := &testClock{now: time.Date(2026, 10, 21, 12, 0, 0, 0, msk)}

	pricing := NewPricingService(config.DefaultPricing(), config.DefaultCatalog())
	referrals := NewReferralService(db, []int64{rootID}, clock.Now)
	ledger := NewLedgerService(db, clock.Now)
	settlement := NewSettlementService(db, referrals, rates)
	buckets := NewBucketService(db, pricing)

	return &testEnv{
		db:         db,
		clock:      clock,
		pricing:    pricing,
		referrals:  referrals,
		ledger:     ledger,
		settlement: settlement,
		buckets:    buckets,
		checkout:   NewCheckoutService(referrals, buckets, ledger, fakeLinker{}),
		callbacks:  NewCallbackService(db, ledger, settlement, buckets, password2, []int64{adminChat1, adminChat2}),
	}
}

func (e *testEnv) register(t *testing.T, id int64, username string, referrer *int64) {
	t.Helper()
	ok, err := e.referrals.Register(context.Background(), id, username, referrer)
	if err != nil {
		t.Fatalf("register %d: %v", id, err)
	}
	if !ok {
		t.Fatalf("register %d: user already existed", id)
	}
}

// insertLegacyUser writes a record the way it looked before tiers were tracked.
func (e *testEnv) insertLegacyUser(t *testing.T, id int64, referrer *int64) {
	t.Helper()
	user := models.User{TelegramID: id, ReferrerID: referrer, RegisteredAt: e.clock.Now()}
	if err := e.db.Create(&user).Error; err != nil {
		t.Fatalf("insert legacy user %d: %v", id, err)
	}
}

func (e *testEnv) user(t *testing.T, id int64) *models.User {
	t.Helper()
	u, err := e.referrals.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("get user %d: %v", id, err)
	}
	return u
}

func (e *testEnv) assertBalance(t *testing.T, id int64, want string) {
	t.Helper()
	got := e.user(t, id).Balance
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("balance of %d = %s, want %s", id, got, want)
	}
}

func ref(id int64) *int64 {
	return &id
}
