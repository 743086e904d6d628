package shared

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv      string `mapstructure:"APP_ENV"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	MetricsAddr string `mapstructure:"METRICS_ADDR"`

	SupabaseURL   string `mapstructure:"SUPABASE_URL"`
	SupabaseKey   string `mapstructure:"SUPABASE_ANON_KEY"`
	StorageBucket string `mapstructure:"STORAGE_BUCKET"`
	RemoteRPS     int    `mapstructure:"REMOTE_RPS"`

	RedisAddr string `mapstructure:"REDIS_ADDR"`
	RedisPass string `mapstructure:"REDIS_PASSWORD"`
	RedisDB   int    `mapstructure:"REDIS_DB"`

	CacheTTLSeconds int `mapstructure:"CACHE_TTL_SECONDS"`

	FallbackLat float64 `mapstructure:"FALLBACK_LAT"`
	FallbackLng float64 `mapstructure:"FALLBACK_LNG"`
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

const placeholderURL = "https://YOUR_PROJECT.supabase.co"

func Load() Config {
	viper.AutomaticEnv()
	viper.SetDefault("APP_ENV", "prod")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("METRICS_ADDR", ":9100")
	viper.SetDefault("SUPABASE_URL", placeholderURL)
	viper.SetDefault("SUPABASE_ANON_KEY", "")
	viper.SetDefault("STORAGE_BUCKET", "bridge-images")
	viper.SetDefault("REMOTE_RPS", 5)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("CACHE_TTL_SECONDS", 120)
	// Paris
	viper.SetDefault("FALLBACK_LAT", 48.8566)
	viper.SetDefault("FALLBACK_LNG", 2.3522)

	var c Config
	_ = viper.Unmarshal(&c)

	// Placeholder fallbacks keep the app bootable without a project, but
	// running with them is a misconfiguration, not a feature.
	if c.SupabaseKey == "" {
		log.Warn().Msg("SUPABASE_ANON_KEY is empty")
	}
	if c.SupabaseURL == placeholderURL {
		log.Warn().Msg("SUPABASE_URL is the placeholder value")
	}
	return c
}
