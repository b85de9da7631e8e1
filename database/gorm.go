package database

import (
	"context"
	"time"

	"github.com/NicoHurtado/cursia-sub002/config"
	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Storage is what the HTTP layer needs from the relational store.
type Storage interface {
	Init() error
	Close() error
	HealthCheck(ctx context.Context) error
	GetDB() *gorm.DB
}

type GORMStore struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewGORMStore wraps an already opened connection.
func NewGORMStore(db *gorm.DB, log *logger.Logger) *GORMStore {
	return &GORMStore{db: db, log: log}
}

// StartGORM initializes a GORM connection to PostgreSQL from DATABASE_URL
func StartGORM(env *config.EnvironmentVariable, log *logger.Logger) (*GORMStore, error) {
	gormLog := gormlogger.Default.LogMode(gormlogger.Warn)
	if env.IsProduction() {
		gormLog = gormlogger.Default.LogMode(gormlogger.Error)
	}

	var db *gorm.DB
	err := WithRetry(context.Background(), func() error {
		var openErr error
		db, openErr = gorm.Open(postgres.Open(env.DATABASE_URL), &gorm.Config{
			Logger:         gormLog,
			PrepareStmt:    true,
			TranslateError: true,
		})
		return openErr
	})
	if err != nil {
		log.Error("unable to connect to PostgreSQL", "error", err)
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("connected to PostgreSQL")
	return NewGORMStore(db, log), nil
}

// Models lists every table the service owns, in migration order.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.JWTTokenBlacklist{},
		&model.AdminAuditLog{},
		&model.CronJobLog{},

		&model.Course{},
		&model.Module{},
		&model.Chunk{},
		&model.Quiz{},
		&model.QuizQuestion{},

		&model.UserProgress{},
		&model.CompletedChunk{},
		&model.CompletedModule{},
		&model.QuizAttempt{},
		&model.Certificate{},
		&model.CourseRating{},

		&model.Subscription{},
		&model.PaymentTransaction{},
		&model.WebhookEvent{},
	}
}

// Init runs the AutoMigrate to create/update tables
func (s *GORMStore) Init() error {
	s.log.Info("running AutoMigrate")
	if err := s.db.AutoMigrate(Models()...); err != nil {
		s.log.Error("AutoMigrate failed", "error", err)
		return err
	}
	s.log.Info("AutoMigrate completed")
	return nil
}

// Close closes the database connection
func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the GORM DB instance for use in services and handlers
func (s *GORMStore) GetDB() *gorm.DB {
	return s.db
}

// HealthCheck verifies the database connection is alive, retrying
// connection-level failures.
func (s *GORMStore) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return WithRetry(ctx, func() error {
		return sqlDB.PingContext(ctx)
	})
}
