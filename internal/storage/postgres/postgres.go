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

	"github.com/jumpfinance/jumpdefi/internal/storage"
	"github.com/jumpfinance/jumpdefi/internal/storage/models"
)

const (
	migrationLockID = 7411
	batchSize       = 200
)

var ErrMigrationInProgress = errors.New("another migration is in progress")

// gormLogger реализует интерфейс logger.Interface для GORM
type gormLogger struct {
	zapLogger     *zap.Logger
	logLevel      logger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger:     zapLogger,
		logLevel:      logger.Warn,
		slowThreshold: 500 * time.Millisecond,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

// Trace logs failed and slow statements; everything else only at Info.
func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.logLevel >= logger.Error:
		l.zapLogger.Error("Query failed", append(fields, zap.Error(err))...)
	case elapsed > l.slowThreshold && l.logLevel >= logger.Warn:
		l.zapLogger.Warn("Slow query", fields...)
	case l.logLevel >= logger.Info:
		l.zapLogger.Debug("Query", fields...)
	}
}

// postgresStorage реализует интерфейс Storage
type postgresStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStorage opens a pooled connection to dsn.
func NewStorage(dsn string, zapLogger *zap.Logger) (storage.Storage, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
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
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &postgresStorage{
		db:     db,
		logger: zapLogger.Named("storage"),
	}, nil
}

// RunMigrations creates the snapshot tables. Concurrent callers are kept
// apart by an advisory lock held on a single session.
func (p *postgresStorage) RunMigrations() error {
	return p.db.Connection(func(conn *gorm.DB) error {
		var lockObtained bool
		if err := conn.Raw("SELECT pg_try_advisory_lock(?)", migrationLockID).Scan(&lockObtained).Error; err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		if !lockObtained {
			return ErrMigrationInProgress
		}
		defer func() {
			if err := conn.Exec("SELECT pg_advisory_unlock(?)", migrationLockID).Error; err != nil {
				p.logger.Error("Failed to release migration lock", zap.Error(err))
			}
		}()

		if err := conn.AutoMigrate(&models.APRSnapshot{}, &models.PriceSnapshot{}); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		p.logger.Info("Migrations applied")
		return nil
	})
}

func (p *postgresStorage) SaveAPRSnapshots(ctx context.Context, snapshots []*models.APRSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	if err := p.db.WithContext(ctx).CreateInBatches(snapshots, batchSize).Error; err != nil {
		return fmt.Errorf("save apr snapshots: %w", err)
	}
	return nil
}

func (p *postgresStorage) SavePriceSnapshots(ctx context.Context, snapshots []*models.PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	if err := p.db.WithContext(ctx).CreateInBatches(snapshots, batchSize).Error; err != nil {
		return fmt.Errorf("save price snapshots: %w", err)
	}
	return nil
}

func (p *postgresStorage) LatestAPR(ctx context.Context, contract string, vaultID int64) (*models.APRSnapshot, error) {
	var snap models.APRSnapshot
	err := p.db.WithContext(ctx).
		Where("contract = ? AND vault_id = ?", contract, vaultID).
		Order("taken_at desc").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: vault %d on %s", storage.ErrNotFound, vaultID, contract)
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (p *postgresStorage) APRHistory(ctx context.Context, contract string, vaultID int64, since time.Time, limit int) ([]*models.APRSnapshot, error) {
	var snaps []*models.APRSnapshot
	err := p.db.WithContext(ctx).
		Where("contract = ? AND vault_id = ? AND taken_at >= ?", contract, vaultID, since.UTC()).
		Order("taken_at asc").
		Limit(limit).
		Find(&snaps).Error
	return snaps, err
}

func (p *postgresStorage) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
