package logging

import (
	"go.uber.org/fx"

	"github.com/keepintouch/backend/config"
)

func ProvideLoggingService(cfg *config.Config) (*Service, error) {
	return NewService(cfg.Log)
}

var Module = fx.Options(
	fx.Provide(ProvideLoggingService),
)
