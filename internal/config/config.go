package config

import (
	"github.com/jessevdk/go-flags"

	authConfig "github.com/iurnickita/artcares/internal/auth/config"
	handlerConfig "github.com/iurnickita/artcares/internal/handler/config"
	loggerConfig "github.com/iurnickita/artcares/internal/logger/config"
	notifyConfig "github.com/iurnickita/artcares/internal/notify/config"
	serviceConfig "github.com/iurnickita/artcares/internal/service/config"
	storeConfig "github.com/iurnickita/artcares/internal/store/config"
)

type Config struct {
	Handler handlerConfig.Config `group:"HTTP Options"`
	Service serviceConfig.Config `group:"Payment Options"`
	Store   storeConfig.Config   `group:"Store Options"`
	Logger  loggerConfig.Config  `group:"Logger Options"`
	Auth    authConfig.Config    `group:"Auth Options"`
	Notify  notifyConfig.Config  `group:"Notification Options"`
}

// GetConfig разбирает аргументы командной строки.
// Непереданные флаги берутся из переменных окружения, затем из значений по умолчанию
func GetConfig(args []string) (Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
