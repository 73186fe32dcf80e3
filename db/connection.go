package db

import (
	"database/sql"
	stdlog "log"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DatabaseConnection struct {
	db    *gorm.DB
	sqlDb *sql.DB
}

var (
	connection  *DatabaseConnection
	connectOnce sync.Once
)

// Connection returns the shared database connection, initializing it on first use.
func Connection() *DatabaseConnection {
	connectOnce.Do(func() {
		connection = InitDb()
	})
	return connection
}

func InitDb() *DatabaseConnection {
	viper.AutomaticEnv()

	var dialector gorm.Dialector
	dsn := viper.GetString("DATABASE_URL")
	if dsn != "" {
		dialector = postgres.Open(dsn)
	} else {
		// Local/dev fallback
		dialector = sqlite.Open("gridrank.db")
	}

	newLogger := logger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to database")
		os.Exit(1)
	}
	migrateError := db.AutoMigrate(
		&ServiceArea{},
		&Category{},
		&Keyword{},
		&Business{},
		&Scan{},
		&ScanPoint{},
		&ScanRanking{},
		&ReviewSnapshot{},
		&ScanSchedule{},
	)
	if migrateError != nil {
		log.Error().Err(migrateError).Msg("Failed to migrate database")
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get underlying database connection")
		os.Exit(1)
	}
	sqlDB.SetMaxIdleConns(viper.GetInt("db.max_idle_conns"))
	sqlDB.SetMaxOpenConns(viper.GetInt("db.max_open_conns"))
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &DatabaseConnection{
		db:    db,
		sqlDb: sqlDB,
	}
}

// DB exposes the underlying gorm handle for ad-hoc queries.
func (conn *DatabaseConnection) DB() *gorm.DB {
	return conn.db
}

// Close closes the underlying database connection.
func (conn *DatabaseConnection) Close() error {
	return conn.sqlDb.Close()
}
