package jwt

import (
	"go.uber.org/fx"

	"github.com/keepintouch/backend/config"
	"github.com/keepintouch/backend/services/logging"
)

func ProvideJWTService(cfg *config.Config, logger *logging.Service) *Service {
	return NewService(cfg, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideJWTService),
)
