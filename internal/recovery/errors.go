package recovery

import (
	"errors"

	"github.com/dukerupert/mailbeforecart/internal/reminder"
)

var (
	ErrNotFound     = errors.New("cart record not found")
	ErrUnauthorized = errors.New("not authorized")
	ErrInvalidInput = errors.New("invalid input")

	ErrPersistence      = reminder.ErrPersistence
	ErrDeliveryFailed   = reminder.ErrDeliveryFailed
	ErrAlreadyPurchased = reminder.ErrAlreadyPurchased
)
