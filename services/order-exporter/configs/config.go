package configs

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/utils"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds application configuration for order-exporter.
type Config struct {
	Port             string        `mapstructure:"PORT" validate:"required"`
	MetricsEnabled   bool          `mapstructure:"METRICS_ENABLED"`
	PageSize         int           `mapstructure:"PAGE_SIZE" validate:"min=1,max=100"`
	MaxPages         int           `mapstructure:"MAX_PAGES" validate:"min=1"`
	PageDelay        time.Duration `mapstructure:"PAGE_DELAY"` // pause between page requests, 0 disables
	HTTPTimeout      time.Duration `mapstructure:"HTTP_TIMEOUT" validate:"required"`
	OrdersPath       string        `mapstructure:"ORDERS_PATH" validate:"required"`
	SortField        string        `mapstructure:"SORT_FIELD" validate:"oneof=date id modified include title slug"`
	SortOrder        string        `mapstructure:"SORT_ORDER" validate:"oneof=asc desc"`
	SessionTTL       time.Duration `mapstructure:"SESSION_TTL" validate:"required"`
	ExportDir        string        `mapstructure:"EXPORT_DIR" validate:"required"`
	RedisAddr        string        `mapstructure:"REDIS_ADDR"` // optional, shares the request budget across replicas
	GlobalRatePerSec int           `mapstructure:"GLOBAL_RATE_PER_SEC" validate:"min=0"`
	GlobalRateBurst  int           `mapstructure:"GLOBAL_RATE_BURST" validate:"min=1"`
	SiteURL          string        `mapstructure:"WC_SITE_URL" validate:"omitempty,url"`
	ConsumerKey      string        `mapstructure:"WC_CONSUMER_KEY"`
	ConsumerSecret   string        `mapstructure:"WC_CONSUMER_SECRET"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("METRICS_ENABLED", "true")
	viper.SetDefault("PAGE_SIZE", "100")
	viper.SetDefault("MAX_PAGES", "100")
	viper.SetDefault("PAGE_DELAY", "100ms")
	viper.SetDefault("HTTP_TIMEOUT", "30s")
	viper.SetDefault("ORDERS_PATH", "/wp-json/wc/v3/orders")
	viper.SetDefault("SORT_FIELD", "date")
	viper.SetDefault("SORT_ORDER", "desc")
	viper.SetDefault("SESSION_TTL", "1h")
	viper.SetDefault("EXPORT_DIR", "./exports")
	viper.SetDefault("GLOBAL_RATE_PER_SEC", "0")
	viper.SetDefault("GLOBAL_RATE_BURST", "5")

	// Optional: Read from config.yaml if exists
	if gin.ReleaseMode == gin.Mode() {
		viper.SetConfigName("config.prod")
	} else if gin.TestMode == gin.Mode() {
		logger.Warn("running_in_test_mode")
		viper.SetConfigName("config.test")
	} else {
		logger.Warn("running_in_development_mode")
		viper.SetConfigName("config.dev")
	}
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./services/order-exporter/configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(&cfg); err != nil {
		return nil, err
	}

	// Validate after unmarshal
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}
	return &cfg, nil
}
