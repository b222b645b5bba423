package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/erlaaaand/dentizy/util"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DBTypeMySQL    = "mysql"
	DBTypePostgres = "postgres"
	DBTypeSQLite   = "sqlite"
	DBTypeMemory   = "memory"
)

var supportedDBTypes = []string{DBTypeMySQL, DBTypePostgres, DBTypeSQLite, DBTypeMemory}

// Config holds the application's configuration values.
type Config struct {
	AppName     string `json:"appname"`
	AppEnv      string `json:"appenv"`
	AppPort     uint16 `json:"appport"`
	GinMode     string `json:"ginmode"`
	AppTimezone string `json:"apptimezone"`

	DBType    string `json:"dbtype"`
	DBHost    string `json:"dbhost"`
	DBPort    uint16 `json:"dbport"`
	DBName    string `json:"dbname"`
	DBUSER    string `json:"dbuser"`
	DBPass    string `json:"dbpass"`
	DBSSLMode string `json:"dbsslmode"`

	RedisEnabled  bool   `json:"redis_enabled"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`

	RateLimitLimit  int64         `json:"ratelimit_limit"`
	RateLimitWindow time.Duration `json:"ratelimit_window"`

	LogLevel  string `json:"loglevel"`
	LogFormat string `json:"logformat"`
}

var config *Config
var once sync.Once

// LoadConfig loads the environment variables from a .env file, and returns a singleton Config instance.
// A missing .env file is not an error; the process environment is used as is.
func LoadConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		config = FromEnv()
	})
	return config
}

// FromEnv reads the configuration from the current environment without caching it.
func FromEnv() *Config {
	appPort, err := strconv.ParseUint(os.Getenv("APPPORT"), 10, 16)
	if err != nil || appPort == 0 {
		appPort = 8080
	}
	dbPort, _ := strconv.ParseUint(os.Getenv("DBPORT"), 10, 16)
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))

	rateLimit, err := strconv.ParseInt(os.Getenv("RATELIMIT_LIMIT"), 10, 64)
	if err != nil || rateLimit <= 0 {
		rateLimit = 60
	}
	rateWindow, err := time.ParseDuration(os.Getenv("RATELIMIT_WINDOW"))
	if err != nil || rateWindow <= 0 {
		rateWindow = time.Minute
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	dbType := strings.ToLower(strings.TrimSpace(os.Getenv("DBTYPE")))
	if dbType == "" {
		dbType = DBTypeMySQL
	}

	return &Config{
		AppName:         getenv("APPNAME", "dentizy"),
		AppEnv:          os.Getenv("APPENV"),
		AppPort:         uint16(appPort),
		GinMode:         getenv("GINMODE", "release"),
		AppTimezone:     os.Getenv("APPTIMEZONE"),
		DBType:          dbType,
		DBHost:          getenv("DBHOST", "localhost"),
		DBPort:          uint16(dbPort),
		DBName:          os.Getenv("DBNAME"),
		DBUSER:          os.Getenv("DBUSER"),
		DBPass:          os.Getenv("DBPASS"),
		DBSSLMode:       getenv("DBSSLMODE", "disable"),
		RedisEnabled:    getenvBool("REDIS_ENABLED"),
		RedisAddr:       redisAddr,
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         redisDB,
		RateLimitLimit:  rateLimit,
		RateLimitWindow: rateWindow,
		LogLevel:        getenv("LOGLEVEL", "info"),
		LogFormat:       getenv("LOGFORMAT", "json"),
	}
}

// IsTest reports whether the process runs under APPENV=test.
func (c *Config) IsTest() bool {
	return c.AppEnv == "test"
}

// Location resolves AppTimezone, falling back to the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.AppTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.AppTimezone, err)
	}
	return loc, nil
}

// LoggerConfig derives the logger settings.
func (c *Config) LoggerConfig() util.LoggerConfig {
	return util.LoggerConfig{
		ServiceName: c.AppName,
		Environment: c.AppEnv,
		Level:       c.LogLevel,
		Format:      c.LogFormat,
	}
}

// DSN builds the data source name for the configured engine.
func (c *Config) DSN() (string, error) {
	switch c.DBType {
	case DBTypeMySQL:
		port := c.DBPort
		if port == 0 {
			port = 3306
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", c.DBUSER, c.DBPass, c.DBHost, port, c.DBName), nil
	case DBTypePostgres:
		port := c.DBPort
		if port == 0 {
			port = 5432
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.DBHost, port, c.DBUSER, c.DBPass, c.DBName, c.DBSSLMode), nil
	case DBTypeSQLite:
		if c.DBName == "" {
			return "dentizy.db", nil
		}
		return c.DBName, nil
	default:
		return "", fmt.Errorf("unsupported DBTYPE %q (want one of %s)", c.DBType, strings.Join(supportedDBTypes, ", "))
	}
}

// ConnectDatabase opens a gorm connection for the configured engine. Under
// APPENV=test an in-memory SQLite database is used instead. DBTYPE=memory has
// no gorm connection and is rejected here.
func ConnectDatabase(cfg *Config, logger *zap.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: util.NewGormLogger(logger, gormlogger.Warn)}

	if cfg.IsTest() {
		dsn := fmt.Sprintf("file:dentizy_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
		return gorm.Open(sqlite.Open(dsn), gormCfg)
	}
	if !util.Contains(cfg.DBType, supportedDBTypes) || cfg.DBType == DBTypeMemory {
		return nil, fmt.Errorf("DBTYPE %q has no SQL connection", cfg.DBType)
	}

	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch cfg.DBType {
	case DBTypeMySQL:
		dialector = mysql.Open(dsn)
	case DBTypePostgres:
		dialector = postgres.Open(dsn)
	case DBTypeSQLite:
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DBType, err)
	}
	return db, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}
