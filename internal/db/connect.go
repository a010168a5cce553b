package db

import (
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/zulandar/quill/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MySQLDSN builds a MySQL DSN for the given database. An empty database
// name addresses the server without selecting a schema.
func MySQLDSN(cfg config.DatabaseConfig, database string) string {
	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password()
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = database
	mc.ParseTime = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// PostgresDSN builds a key/value DSN for the given database.
func PostgresDSN(cfg config.DatabaseConfig, database string) string {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", cfg.Host, cfg.Port, database, cfg.SSLMode)
	if cfg.User != "" {
		dsn += " user=" + cfg.User
	}
	if pw := cfg.Password(); pw != "" {
		dsn += " password=" + pw
	}
	return dsn
}

// Dialector returns the GORM dialector for the configured driver.
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.Path), nil
	case "mysql":
		return mysql.Open(MySQLDSN(cfg, cfg.Name)), nil
	case "postgres":
		return postgres.Open(PostgresDSN(cfg, cfg.Name)), nil
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}
}

// Connect opens a GORM connection using the configured driver.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	d, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect %s %s: %w", cfg.Driver, target(cfg), err)
	}
	return db, nil
}

// ConnectAdmin opens a server-level MySQL connection without selecting a
// database, used for CREATE/DROP DATABASE.
func ConnectAdmin(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.Driver != "mysql" {
		return nil, fmt.Errorf("db: admin connection requires the mysql driver, got %q", cfg.Driver)
	}
	db, err := gorm.Open(mysql.Open(MySQLDSN(cfg, "")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: admin connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return db, nil
}

// DropDatabase drops the named database if it exists.
func DropDatabase(adminDB *gorm.DB, name string) error {
	sql := fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", name)
	if err := adminDB.Exec(sql).Error; err != nil {
		return fmt.Errorf("db: drop database %s: %w", name, err)
	}
	return nil
}

// CreateDatabase creates the named database if it doesn't already exist.
func CreateDatabase(adminDB *gorm.DB, name string) error {
	sql := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name)
	if err := adminDB.Exec(sql).Error; err != nil {
		return fmt.Errorf("db: create database %s: %w", name, err)
	}
	return nil
}

func target(cfg config.DatabaseConfig) string {
	if cfg.Driver == "sqlite" {
		return cfg.Path
	}
	return fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Name)
}
