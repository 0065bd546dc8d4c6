// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/rovshanmuradov/sonic-defi/internal/storage/models"
)

// ErrNotFound возвращается, когда запись отсутствует.
var ErrNotFound = errors.New("record not found")

// Storage определяет интерфейс журнала операций
type Storage interface {
	// Журнал операций кошелька
	SaveActivity(ctx context.Context, a *models.Activity) error
	GetActivity(ctx context.Context, hash string) (*models.Activity, error)
	ListActivity(ctx context.Context, wallet string, limit, offset int) ([]*models.Activity, error)
	UpdateActivityStatus(ctx context.Context, hash, status, errorMsg string) error

	// Снимки пулов
	SavePoolSnapshot(ctx context.Context, s *models.PoolSnapshot) error
	LatestPoolSnapshot(ctx context.Context, poolAddress string) (*models.PoolSnapshot, error)

	RunMigrations() error
	Close() error
}
