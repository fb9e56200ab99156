package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/keepintouch/backend/apperror"
	"github.com/keepintouch/backend/config"
	"github.com/keepintouch/backend/services/logging"
)

type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	logger *logging.Service
}

func New(cfg *config.Config, logger *logging.Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = NewRequestValidator()

	s := &Server{
		echo:   e,
		cfg:    cfg,
		logger: logger,
	}

	e.HTTPErrorHandler = s.handleError
	e.Use(echomw.Recover())
	e.Use(s.requestLogger())

	return s
}

func (s *Server) Start() {
	addr := fmt.Sprintf("%s:%s", s.cfg.Server.Host, s.cfg.Server.Port)
	if s.logger != nil {
		s.logger.Info("starting http server", zap.String("addr", addr))
	}

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		if s.logger != nil {
			s.logger.Fatal("failed to start server", zap.Error(err))
		}
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) Group(prefix string) *echo.Group {
	return s.echo.Group(prefix)
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// handleError renders every error as {status, message} JSON. Typed errors
// keep their status and text; anything unrecognized becomes an opaque 500 so
// internals never reach the client.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var appErr *apperror.Error
	if httpErr, ok := err.(*echo.HTTPError); ok {
		appErr = apperror.New(httpErr.Code, fmt.Sprintf("%v", httpErr.Message))
	} else {
		appErr = apperror.From(err)
	}

	if appErr.Code >= http.StatusInternalServerError {
		if s.logger != nil {
			s.logger.Error("request failed",
				zap.Error(err),
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path))
		}
	}

	if jsonErr := c.JSON(appErr.Code, appErr); jsonErr != nil && s.logger != nil {
		s.logger.Error("failed to write error response", zap.Error(jsonErr))
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURI:       true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if s.logger == nil {
				return nil
			}
			if s.cfg.IsProduction() && v.Status < http.StatusBadRequest {
				return nil
			}
			s.logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
				zap.String("user_agent", v.UserAgent))
			return nil
		},
	})
}
