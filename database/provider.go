package database

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/keepintouch/backend/config"
)

var Module = fx.Options(
	fx.Provide(ProvideDatabase),
)

func ProvideDatabase(cfg *config.Config, modelsOpt *ModelsOption) (*gorm.DB, error) {
	return Open(cfg.Database, modelsOpt)
}
