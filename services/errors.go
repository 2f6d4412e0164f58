package services

import (
	"errors"

	"github.com/anjiri1684/peptide_shop/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrAlreadyClosed     = errors.New("payment already closed")
	ErrSignatureMismatch = errors.New("callback signature mismatch")
	ErrInvalidCallback   = errors.New("malformed callback")
	ErrEmptyBucket       = errors.New("bucket is empty")

	ErrInvalidPosition     = models.ErrInvalidPosition
	ErrQuantityLimit       = models.ErrQuantityLimit
	ErrPositionNotInBucket = models.ErrPositionNotInBucket
)
