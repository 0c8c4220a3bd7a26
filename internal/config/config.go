package config

import "github.com/spf13/viper"

// Config - структура для хранения конфигураций приложения
type Config struct {
	PostgresConn        string `mapstructure:"POSTGRES_CONN"`
	MigrationURL        string `mapstructure:"MIGRATION_URL"`
	Timezone            string `mapstructure:"TIMEZONE"`
	DefaultCurrency     string `mapstructure:"DEFAULT_CURRENCY"`
	InvitationBatchSize int    `mapstructure:"INVITATION_BATCH_SIZE"`
}

// LoadConfig загружает конфигурацию из файла
func LoadConfig(path string) (cfg Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	viper.SetDefault("TIMEZONE", "Africa/Lusaka")
	viper.SetDefault("DEFAULT_CURRENCY", "ZMW")
	viper.SetDefault("INVITATION_BATCH_SIZE", 25)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}
	err = viper.Unmarshal(&cfg)
	return
}
