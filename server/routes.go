package server

import (
	"fmt"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/keepintouch/backend/apperror"
	"github.com/keepintouch/backend/config"
	authmw "github.com/keepintouch/backend/middleware/auth"
	"github.com/keepintouch/backend/services/auth"
	"github.com/keepintouch/backend/services/logging"
	"github.com/keepintouch/backend/services/user"
)

// RegisterRoutes wires the versioned API onto the server. CORS is open in
// development and pinned to the frontend origin in production.
func RegisterRoutes(
	srv *Server,
	cfg *config.Config,
	authService *auth.Service,
	userService *user.Service,
	logger *logging.Service,
) {
	e := srv.Echo()

	corsConfig := echomw.DefaultCORSConfig
	if cfg.IsProduction() {
		corsConfig.AllowOrigins = []string{cfg.App.FrontendURL}
		corsConfig.AllowMethods = []string{echo.GET, echo.POST, echo.PUT, echo.PATCH, echo.DELETE}
		corsConfig.AllowHeaders = []string{echo.HeaderContentType, echo.HeaderAuthorization}
	}
	e.Use(echomw.CORSWithConfig(corsConfig))
	e.Use(echomw.Secure())
	e.Use(echomw.Gzip())

	e.RouteNotFound("/*", func(c echo.Context) error {
		return apperror.NotFound(fmt.Sprintf("Can't find %s %s", c.Request().Method, c.Request().URL.Path))
	})

	requireAuth := authmw.RequireAuth(authService)
	lastSeen := authmw.UpdateLastSeen(userService, logger)

	authHandler := NewAuthHandler(authService)
	userHandler := NewUserHandler(userService)

	v1 := srv.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)
	authGroup.POST("/forgot-password", authHandler.ForgotPassword)
	authGroup.POST("/reset-password", authHandler.ResetPassword)
	authGroup.POST("/logout", authHandler.Logout, requireAuth)
	authGroup.PATCH("/update-password", authHandler.UpdatePassword, requireAuth)
	authGroup.GET("/sessions", authHandler.GetSessions, requireAuth)
	authGroup.DELETE("/sessions/:tokenId", authHandler.RevokeSession, requireAuth)

	usersGroup := v1.Group("/users")
	usersGroup.GET("/me", userHandler.GetCurrentUser, requireAuth, lastSeen)
	usersGroup.PATCH("/me", userHandler.UpdateProfile, requireAuth)
	usersGroup.DELETE("/me", userHandler.DeleteAccount, requireAuth)
	usersGroup.GET("/search", userHandler.Search, requireAuth)
	usersGroup.GET("/lookup", userHandler.LookupUsers, requireAuth)
	usersGroup.GET("", userHandler.ListUsers, requireAuth, authmw.RequireRole(user.RoleAdmin))
	usersGroup.GET("/:id", userHandler.GetUserByID)
}
