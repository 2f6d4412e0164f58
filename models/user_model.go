package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TierCustomer = 0
	TierRoot     = 1
	TierPartner  = 2
)

type User struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	TelegramID int64     `gorm:"not null;uniqueIndex" json:"telegram_id"`
	Username   *string   `gorm:"size:255;index" json:"username"`

	// ReferrerID is written once at registration and never updated.
	ReferrerID   *int64          `gorm:"index" json:"referrer_id"`
	ReferralTier int             `gorm:"not null;default:0" json:"referral_tier"`
	TierResolved bool            `gorm:"not null;default:false" json:"-"`
	Balance      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"balance"`

	Bucket datatypes.JSONType[Bucket] `gorm:"default:'{}'" json:"bucket"`

	RegisteredAt time.Time `gorm:"index" json:"registered_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Handle returns the username without the leading @, or an empty string.
func (u *User) Handle() string {
	if u.Username != nil && *u.Username != "" {
		return strings.TrimPrefix(*u.Username, "@")
	}
	return ""
}
