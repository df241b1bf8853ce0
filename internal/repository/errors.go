package repository

import (
	"errors"
	"fmt"

	"github.com/Dhoini/parking-payments/internal/domain"
)

var (
	// ErrNotFound запись не найдена
	ErrNotFound = fmt.Errorf("record not found: %w", domain.ErrNotFound)

	// ErrDuplicate дубликат записи
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidData неверные данные
	ErrInvalidData = fmt.Errorf("invalid data: %w", domain.ErrInvalidInput)
)
