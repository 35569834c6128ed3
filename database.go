package main

import (
	"fmt"
	"net/url"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DatabaseConfig selects the sql driver and how to reach the database.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	FilePath string `mapstructure:"file_path"`
}

// Dialector returns the gorm dialector of the configured driver.
func (dc DatabaseConfig) Dialector() (gorm.Dialector, error) {
	switch dc.Driver {
	case "", "postgres":
		return postgres.Open(dc.postgresDSN()), nil
	case "mysql":
		return mysql.Open(dc.mysqlDSN()), nil
	case "sqlite":
		return sqlite.Open(dc.FilePath), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", dc.Driver)
	}
}

func (dc DatabaseConfig) postgresDSN() string {
	sslmode := dc.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s", dc.Host, dc.Port, dc.User, dc.Name, sslmode)
	if dc.Password != "" {
		dsn += " password=" + dc.Password
	}
	return dsn
}

func (dc DatabaseConfig) mysqlDSN() string {
	q := url.Values{}
	q.Set("charset", "utf8mb4")
	q.Set("parseTime", "True")
	q.Set("loc", "UTC")
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", dc.User, dc.Password, dc.Host, dc.Port, dc.Name, q.Encode())
}

// OpenDB opens a new database connection. It also configures logging
// based on whether we're in development or in production.
// Driver errors like unique violations are translated into gorm errors.
func OpenDB(dc DatabaseConfig, isProd bool) (*gorm.DB, error) {
	dialector, err := dc.Dialector()
	if err != nil {
		return nil, err
	}
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Info),
		TranslateError: true,
	}
	if isProd {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("err opening gorm %s connection: %w", dc.Driver, err)
	}
	return db, nil
}

// CloseDB closes the connection pool behind db.
func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
