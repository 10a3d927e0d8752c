package config

import (
	"errors"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Platform    PlatformConfig
	Report      ReportConfig
	SellThrough SellThroughConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Storage     StorageConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type PlatformConfig struct {
	StoreDomain string
	AccessToken string
	APIVersion  string
}

type ReportConfig struct {
	RangeMonths int
	Policy      string // "forward" or "backward"
	BatchWidth  int    // concurrent per-item enrichment fetches
}

type SellThroughConfig struct {
	URL      string
	Required bool
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type CacheConfig struct {
	Enabled          bool
	RedisURL         string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	ReportTTLSeconds int
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		// Set default values
		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_READ_TIMEOUT", 30)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 300)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("PLATFORM_API_VERSION", "2024-07")
		viper.SetDefault("REPORT_RANGE_MONTHS", 24)
		viper.SetDefault("REPORT_POLICY", "forward")
		viper.SetDefault("REPORT_BATCH_WIDTH", 5)
		viper.SetDefault("SELL_THROUGH_URL", "")
		viper.SetDefault("SELL_THROUGH_REQUIRED", false)
		viper.SetDefault("DB_ENABLED", false)
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "stocklens")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_REPORT_TTL_SECONDS", 600)
		viper.SetDefault("STORAGE_ENDPOINT", "")
		viper.SetDefault("STORAGE_BUCKET", "")
		viper.SetDefault("STORAGE_REGION", "")
		viper.SetDefault("STORAGE_USE_SSL", true)

		// Read from environment variables
		viper.AutomaticEnv()

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Platform: PlatformConfig{
				StoreDomain: viper.GetString("PLATFORM_STORE_DOMAIN"),
				AccessToken: viper.GetString("PLATFORM_ACCESS_TOKEN"),
				APIVersion:  viper.GetString("PLATFORM_API_VERSION"),
			},
			Report: ReportConfig{
				RangeMonths: viper.GetInt("REPORT_RANGE_MONTHS"),
				Policy:      viper.GetString("REPORT_POLICY"),
				BatchWidth:  viper.GetInt("REPORT_BATCH_WIDTH"),
			},
			SellThrough: SellThroughConfig{
				URL:      viper.GetString("SELL_THROUGH_URL"),
				Required: viper.GetBool("SELL_THROUGH_REQUIRED"),
			},
			Database: DatabaseConfig{
				Enabled:  viper.GetBool("DB_ENABLED"),
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			Cache: CacheConfig{
				Enabled:          viper.GetBool("CACHE_ENABLED"),
				RedisURL:         viper.GetString("REDIS_URL"),
				RedisHost:        viper.GetString("REDIS_HOST"),
				RedisPort:        viper.GetString("REDIS_PORT"),
				RedisPassword:    viper.GetString("REDIS_PASSWORD"),
				RedisDB:          viper.GetInt("REDIS_DB"),
				ReportTTLSeconds: viper.GetInt("CACHE_REPORT_TTL_SECONDS"),
			},
			Storage: StorageConfig{
				Endpoint:  viper.GetString("STORAGE_ENDPOINT"),
				AccessKey: viper.GetString("STORAGE_ACCESS_KEY"),
				SecretKey: viper.GetString("STORAGE_SECRET_KEY"),
				Bucket:    viper.GetString("STORAGE_BUCKET"),
				Region:    viper.GetString("STORAGE_REGION"),
				UseSSL:    viper.GetBool("STORAGE_USE_SSL"),
			},
		}
	})

	return instance
}

// Validate checks the settings a report run cannot proceed without. It runs
// before any fetch so a misconfigured deployment fails fast.
func (c *Config) Validate() error {
	if c.Platform.StoreDomain == "" {
		return errors.New("PLATFORM_STORE_DOMAIN is required")
	}
	if c.Platform.AccessToken == "" {
		return errors.New("PLATFORM_ACCESS_TOKEN is required")
	}
	if c.SellThrough.Required && c.SellThrough.URL == "" {
		return errors.New("SELL_THROUGH_URL is required when SELL_THROUGH_REQUIRED is set")
	}
	return nil
}
