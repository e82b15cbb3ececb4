package config

import "github.com/spf13/viper"

// Config - структура для хранения конфигураций приложения
type Config struct {
	ServerAddress     string `mapstructure:"SERVER_ADDRESS"`
	PostgresConn      string `mapstructure:"POSTGRES_CONN"`
	MigrationURL      string `mapstructure:"MIGRATION_URL"`
	NatsURL           string `mapstructure:"NATS_URL"`
	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	RedisPassword     string `mapstructure:"REDIS_PASSWORD"`
	StripeSecretKey   string `mapstructure:"STRIPE_SECRET_KEY"`
	SchedulerInterval string `mapstructure:"SCHEDULER_INTERVAL"`
	BidRatePerSecond  int    `mapstructure:"BID_RATE_PER_SECOND"`
	BidRateBurst      int    `mapstructure:"BID_RATE_BURST"`
}

// LoadConfig загружает конфигурацию из файла
func LoadConfig(path string) (cfg Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	viper.SetDefault("SERVER_ADDRESS", ":8080")
	viper.SetDefault("SCHEDULER_INTERVAL", "5s")
	viper.SetDefault("BID_RATE_PER_SECOND", 20)
	viper.SetDefault("BID_RATE_BURST", 40)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}
	err = viper.Unmarshal(&cfg)
	return
}
