package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AdminAccount struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Username string    `gorm:"size:255;not null;unique" json:"username"`
	Password string    `gorm:"not null" json:"-"`
	Role     string    `gorm:"size:20;not null;default:'admin'" json:"role"`

	CreatedAt time.Time `json:"created_at"`
}

func (a *AdminAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
