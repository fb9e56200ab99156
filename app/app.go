package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/keepintouch/backend/config"
	"github.com/keepintouch/backend/database"
	"github.com/keepintouch/backend/server"
	"github.com/keepintouch/backend/services/auth"
	"github.com/keepintouch/backend/services/jwt"
	"github.com/keepintouch/backend/services/logging"
	"github.com/keepintouch/backend/services/mail"
	"github.com/keepintouch/backend/services/passwordreset"
	"github.com/keepintouch/backend/services/refreshtoken"
	"github.com/keepintouch/backend/services/user"
)

// App bundles the fx graph and the handles callers need after startup,
// mainly so tests can reach the database and the echo instance directly.
type App struct {
	fx     *fx.App
	config *config.Config
	logger *logging.Service
	db     *gorm.DB
	server *server.Server
}

func New(customConfig *config.Config) *App {
	a := &App{}

	a.fx = fx.New(
		config.NewProvider(customConfig),
		logging.Module,
		database.Module,
		fx.Supply(database.WithModels(
			&user.User{},
			&refreshtoken.RefreshToken{},
			&passwordreset.PasswordResetToken{},
		)),
		jwt.Module,
		user.Module,
		refreshtoken.Module,
		passwordreset.Module,
		mail.Module,
		auth.Module,
		server.Module,
		fx.Populate(&a.config, &a.logger, &a.db, &a.server),
		fx.WithLogger(func(logger *logging.Service) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Logger()}
		}),
	)

	return a
}

func (a *App) Start() error {
	return a.fx.Start(context.Background())
}

func (a *App) Run() {
	if err := a.Start(); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	if a.logger != nil {
		a.logger.Info("received shutdown signal, stopping gracefully", zap.String("signal", sig.String()))
	}

	a.Stop()
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.fx.Stop(ctx); err != nil {
		if a.logger != nil {
			a.logger.Error("failed to stop application gracefully", zap.Error(err))
		} else {
			log.Printf("Failed to stop application gracefully: %v", err)
		}
	}
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) Logger() *logging.Service {
	return a.logger
}

func (a *App) DB() *gorm.DB {
	return a.db
}

func (a *App) Server() *server.Server {
	return a.server
}
