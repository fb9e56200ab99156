package passwordreset

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/keepintouch/backend/config"
	"github.com/keepintouch/backend/services/logging"
)

func ProvidePasswordResetService(lc fx.Lifecycle, db *gorm.DB, cfg *config.Config, logger *logging.Service) *Service {
	service := NewService(db, cfg, logger)

	if cfg.PasswordReset.CleanupInterval > 0 {
		service.StartCleanupWorker()
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				service.StopCleanupWorker()
				return nil
			},
		})
	}

	return service
}

var Module = fx.Options(
	fx.Provide(ProvidePasswordResetService),
)
