package mail

import (
	"go.uber.org/fx"

	"github.com/keepintouch/backend/config"
	"github.com/keepintouch/backend/services/logging"
)

func ProvideMailService(cfg *config.Config, logger *logging.Service) (*Service, error) {
	return NewService(cfg, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideMailService),
	fx.Provide(func(s *Service) Sender { return s }),
)
