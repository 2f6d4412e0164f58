package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Payment struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	PayNum     int64     `gorm:"not null;uniqueIndex" json:"pay_num"`
	TelegramID int64     `gorm:"not null;index" json:"telegram_id"`
	Username   *string   `gorm:"size:255" json:"username"`
	Amount     int64     `gorm:"not null" json:"amount"`
	Address    string    `gorm:"type:text" json:"address"`

	Closed          bool       `gorm:"not null;default:false" json:"closed"`
	ClosedAt        *time.Time `json:"closed_at"`
	ConfirmedAmount *int64     `json:"confirmed_amount"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PaySequence is a named counter backing payment numbers.
type PaySequence struct {
	Name      string `gorm:"size:50;primary_key"`
	LastValue int64  `gorm:"not null;default:0"`
}
