// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rovshanmuradov/sonic-defi/internal/storage"
	"github.com/rovshanmuradov/sonic-defi/internal/storage/models"
)

const migrationLockID = 146

// postgresStorage реализует интерфейс Storage
type postgresStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStorage(dsn string, zapLogger *zap.Logger) (storage.Storage, error) {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm"), logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Настройка пула соединений
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &postgresStorage{db: db, logger: zapLogger.Named("storage")}, nil
}

// RunMigrations применяет AutoMigrate под advisory lock.
func (p *postgresStorage) RunMigrations() error {
	var lockObtained bool
	err := p.db.Raw("SELECT pg_try_advisory_lock(?)", migrationLockID).Scan(&lockObtained).Error
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !lockObtained {
		return fmt.Errorf("another migration is in progress")
	}
	defer p.db.Exec("SELECT pg_advisory_unlock(?)", migrationLockID)

	if err := p.db.AutoMigrate(&models.Activity{}, &models.PoolSnapshot{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	p.logger.Info("Migrations applied")
	return nil
}

func (p *postgresStorage) SaveActivity(ctx context.Context, a *models.Activity) error {
	return p.db.WithContext(ctx).Create(a).Error
}

func (p *postgresStorage) GetActivity(ctx context.Context, hash string) (*models.Activity, error) {
	var a models.Activity
	err := p.db.WithContext(ctx).Where("hash = ?", hash).First(&a).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (p *postgresStorage) ListActivity(ctx context.Context, wallet string, limit, offset int) ([]*models.Activity, error) {
	var list []*models.Activity
	err := p.db.WithContext(ctx).
		Where("LOWER(wallet) = LOWER(?)", wallet).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&list).Error
	return list, err
}

func (p *postgresStorage) UpdateActivityStatus(ctx context.Context, hash, status, errorMsg string) error {
	res := p.db.WithContext(ctx).Model(&models.Activity{}).
		Where("hash = ?", hash).
		Updates(map[string]interface{}{
			"status": status,
			"error":  errorMsg,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (p *postgresStorage) SavePoolSnapshot(ctx context.Context, s *models.PoolSnapshot) error {
	return p.db.WithContext(ctx).Create(s).Error
}

func (p *postgresStorage) LatestPoolSnapshot(ctx context.Context, poolAddress string) (*models.PoolSnapshot, error) {
	var s models.PoolSnapshot
	err := p.db.WithContext(ctx).
		Where("pool_address = ?", poolAddress).
		Order("created_at desc").
		First(&s).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (p *postgresStorage) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}
