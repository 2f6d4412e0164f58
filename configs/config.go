package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/anjiri1684/peptide_shop/logger"
)

// PricingSchedule is the volume-discount schedule applied to a bucket.
type PricingSchedule struct {
	UnitPrice     int64
	BulkThreshold int
	BulkBase      int64
	PromoFrom     int
	PromoTo       int
	PromoPrice    int64
}

// CommissionSchedule holds the referral payout rates.
type CommissionSchedule struct {
	SecondTierDirect decimal.Decimal
	SecondTierRoot   decimal.Decimal
	FirstTierDirect  decimal.Decimal
}

type RobokassaConfig struct {
	Login     string
	Password1 string
	Password2 string
	TestMode  bool
}

type Config struct {
	DatabaseURL string
	Port        string
	Production  bool
	JWTSecret   string

	BotToken    string
	BotName     string
	RedirectURL string

	AdminIDs        []int64
	RootReferrerIDs []int64
	AdminUsername   string
	AdminPassword   string

	Location  *time.Location
	Robokassa RobokassaConfig

	Pricing    PricingSchedule
	Commission CommissionSchedule
	Catalog    Catalog
}

func DefaultPricing() PricingSchedule {
	return PricingSchedule{
		UnitPrice:     4700,
		BulkThreshold: 3,
		BulkBase:      13500,
		PromoFrom:     6,
		PromoTo:       7,
		PromoPrice:    24000,
	}
}

func DefaultCommission() CommissionSchedule {
	return CommissionSchedule{
		SecondTierDirect: decimal.RequireFromString("0.4"),
		SecondTierRoot:   decimal.RequireFromString("0.1"),
		FirstTierDirect:  decimal.RequireFromString("0.5"),
	}
}

// Load builds the typed application configuration from .env and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		logger.Log.Warn(".env file not found, reading from system environment variables")
	}

	tz := envOr("TIMEZONE", "Europe/Moscow")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}

	adminIDs, err := parseIDs(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, err
	}
	rootIDs, err := parseIDs(os.Getenv("ROOT_REFERRER_IDS"))
	if err != nil {
		return nil, err
	}

	testMode := strings.EqualFold(os.Getenv("TEST_MODE"), "true")
	rk := RobokassaConfig{
		Login:     os.Getenv("ROBOKASSA_LOGIN"),
		Password1: os.Getenv("ROBOKASSA_PASSWORD"),
		Password2: os.Getenv("ROBOKASSA_PASSWORD2"),
		TestMode:  testMode,
	}
	if testMode {
		rk.Password1 = os.Getenv("ROBOKASSA_TEST_PASSWORD")
		rk.Password2 = os.Getenv("ROBOKASSA_TEST_PASSWORD2")
	}

	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		Port:            envOr("PORT", "5000"),
		Production:      strings.EqualFold(os.Getenv("APP_ENV"), "production"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		BotToken:        os.Getenv("BOT_TOKEN"),
		BotName:         os.Getenv("BOT_NAME"),
		RedirectURL:     envOr("BOT_REDIRECT_URL", "https://t.me/"+os.Getenv("BOT_NAME")),
		AdminIDs:        adminIDs,
		RootReferrerIDs: rootIDs,
		AdminUsername:   envOr("ADMIN_USERNAME", "admin"),
		AdminPassword:   os.Getenv("ADMIN_PASSWORD"),
		Location:        loc,
		Robokassa:       rk,
		Pricing:         DefaultPricing(),
		Commission:      DefaultCommission(),
		Catalog:         DefaultCatalog(),
	}

	if v := os.Getenv("UNIT_PRICE"); v != "" {
		price, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, err
		}
		cfg.Pricing.UnitPrice = price
	}

	logger.Log.Info("configuration loaded",
		zap.String("timezone", tz),
		zap.Int("admins", len(adminIDs)),
		zap.Int("root_referrers", len(rootIDs)),
		zap.Bool("robokassa_test_mode", testMode),
	)
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
