package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/keepintouch/backend/apperror"
	authsvc "github.com/keepintouch/backend/services/auth"
	"github.com/keepintouch/backend/services/logging"
	"github.com/keepintouch/backend/services/user"
)

const UserKey = "_auth_user"

var (
	ErrTokenRequired  = apperror.Unauthorized("Access token is required. Please login to continue")
	ErrAuthRequired   = apperror.Unauthorized("Authentication required")
	ErrUnknownAccount = apperror.Unauthorized("Invalid token or user not found")
)

// RequireAuth authenticates the request from the Authorization header and
// stores the resolved user on the echo context. Requests without a bearer
// token are rejected before any handler runs.
func RequireAuth(auth *authsvc.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				return ErrTokenRequired
			}

			u, err := auth.ValidateAccessToken(token)
			if err != nil {
				if errors.Is(err, authsvc.ErrUserNotFound) {
					return ErrUnknownAccount
				}
				return err
			}

			c.Set(UserKey, u)

			return next(c)
		}
	}
}

// RequireRole allows the request through only when the authenticated user
// holds one of the given roles. Must run after RequireAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u := GetUser(c)
			if u == nil {
				return ErrAuthRequired
			}

			for _, role := range roles {
				if u.Role == role {
					return next(c)
				}
			}

			return apperror.Forbidden(fmt.Sprintf("Role: %s is not allowed to access this resource", u.Role))
		}
	}
}

// UpdateLastSeen refreshes the authenticated user's last-seen timestamp.
// Failures are logged and never fail the request.
func UpdateLastSeen(users *user.Service, logger *logging.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if u := GetUser(c); u != nil {
				if err := users.UpdateLastSeen(u.ID); err != nil && logger != nil {
					logger.Error("failed to update last seen", zap.Error(err), zap.Uint("user_id", u.ID))
				}
			}
			return next(c)
		}
	}
}

func GetUser(c echo.Context) *user.User {
	if u, ok := c.Get(UserKey).(*user.User); ok {
		return u
	}
	return nil
}

func GetUserID(c echo.Context) uint {
	if u := GetUser(c); u != nil {
		return u.ID
	}
	return 0
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
