package user

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/keepintouch/backend/config"
	"github.com/keepintouch/backend/services/logging"
)

func ProvideUserService(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Service {
	return NewService(db, cfg, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideUserService),
)
