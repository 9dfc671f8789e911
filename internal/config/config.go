package config

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultPasswordHash is the bcrypt hash of the built-in password "123456".
const DefaultPasswordHash = "$2a$10$2X72JtYNB7BpSQABbOnSi.fC9TTuwD7jRs8MqNHLHlRULMswHqNuO"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Client   ClientConfig   `yaml:"client"`
	APIs     APIConfig      `yaml:"apis"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	BodyLimitMB int      `yaml:"body_limit_mb"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig selects where documents live. Driver is "file" or "mysql";
// DataDir is used by the file driver and for backups with either driver.
type StorageConfig struct {
	Driver  string `yaml:"driver"`
	DataDir string `yaml:"data_dir"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type AuthConfig struct {
	PasswordHash string `yaml:"password_hash"`
	JWTSecret    string `yaml:"jwt_secret"`
}

type ClientConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// APIConfig holds credentials for the third-party widget endpoints.
type APIConfig struct {
	CatKey   string `yaml:"cat_key"`
	NasaKey  string `yaml:"nasa_key"`
	ApihzID  string `yaml:"apihz_id"`
	ApihzKey string `yaml:"apihz_key"`
}

func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, BodyLimitMB: 10, CORSOrigins: []string{"*"}},
		Log:      LogConfig{Level: "info", Console: true, MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 30},
		Storage:  StorageConfig{Driver: "file", DataDir: "data"},
		Database: DatabaseConfig{Host: "127.0.0.1", Port: 3306, Name: "my_page"},
		Auth:     AuthConfig{PasswordHash: DefaultPasswordHash, JWTSecret: "my-page-secret"},
		Client:   ClientConfig{BaseURL: "http://localhost:8080/api", Timeout: 15 * time.Second},
		APIs:     APIConfig{NasaKey: "DEMO_KEY"},
	}
}

func Load(configFile string) *Config {
	c := Default()

	paths := []string{"etc/config-dev.yaml", "/etc/my-page/config.yaml"}
	if configFile != "" {
		paths = []string{configFile}
	}
	for _, path := range paths {
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, c)
			break
		}
	}

	// .env 只补充未设置的环境变量
	_ = godotenv.Load()

	envOverride(&c.Storage.Driver, "STORE_DRIVER")
	envOverride(&c.Storage.DataDir, "DATA_DIR")
	envOverride(&c.Database.Host, "MYSQL_HOST")
	envOverride(&c.Database.User, "MYSQL_USER")
	envOverride(&c.Database.Password, "MYSQL_PASS")
	envOverride(&c.Database.Name, "MYSQL_DB")
	envOverride(&c.Log.Level, "LOG_LEVEL")
	envOverride(&c.Log.File, "LOG_FILE")
	envOverride(&c.Auth.JWTSecret, "JWT_SECRET")
	envOverride(&c.Client.BaseURL, "API_BASE_URL")
	envOverride(&c.APIs.CatKey, "CAT_API_KEY")
	envOverride(&c.APIs.NasaKey, "NASA_API_KEY")
	envOverride(&c.APIs.ApihzID, "APIHZ_ID")
	envOverride(&c.APIs.ApihzKey, "APIHZ_KEY")
	envOverrideInt(&c.Server.Port, "PORT")
	envOverrideInt(&c.Database.Port, "MYSQL_PORT")
	envOverrideDuration(&c.Client.Timeout, "CLIENT_TIMEOUT")

	return c
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func (c *Config) BodyLimit() int64 {
	return int64(c.Server.BodyLimitMB) << 20
}

func (c *Config) BackupDir() string {
	return filepath.Join(c.Storage.DataDir, "backups")
}

func (c *Config) OpenGormDB() (*gorm.DB, error) {
	cfg := gomysql.NewConfig()
	cfg.User = c.Database.User
	cfg.Passwd = c.Database.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port)
	cfg.DBName = c.Database.Name
	cfg.ParseTime = true

	connector, err := gomysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}
	sqlDB := sql.OpenDB(connector)
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return gorm.Open(mysql.New(mysql.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envOverrideDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
