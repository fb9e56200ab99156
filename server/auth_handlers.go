package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keepintouch/backend/apperror"
	authmw "github.com/keepintouch/backend/middleware/auth"
	"github.com/keepintouch/backend/services/auth"
	"github.com/keepintouch/backend/services/refreshtoken"
)

type AuthHandler struct {
	auth *auth.Service
}

func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{auth: authService}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.auth.Register(auth.RegisterData{
		Username: req.Username,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	}, deviceInfo(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message":      "User registered successfully",
		"user":         result.User,
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.auth.Login(req.Identifier, req.Password, deviceInfo(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message":      "Login successful",
		"user":         result.User,
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	tokens, err := h.auth.Refresh(req.RefreshToken, deviceInfo(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message":      "Token refreshed successfully",
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
	})
}

// Logout reads the refresh token from the body or the X-Refresh-Token header
// and always succeeds for an authenticated caller.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req LogoutRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		refreshToken = c.Request().Header.Get("X-Refresh-Token")
	}

	h.auth.Logout(authmw.GetUserID(c), refreshToken, req.LogoutAllDevices)

	message := "Logged out successfully"
	if req.LogoutAllDevices {
		message = "Logged out from all devices successfully"
	}

	return c.JSON(http.StatusOK, echo.Map{"message": message})
}

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.auth.ForgotPassword(req.Email); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Password reset instructions sent to your email",
	})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.auth.ResetPassword(req.Token, req.NewPassword); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Password reset successfully",
	})
}

func (h *AuthHandler) UpdatePassword(c echo.Context) error {
	var req UpdatePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.auth.UpdatePassword(authmw.GetUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"message": "Password updated successfully",
	})
}

func (h *AuthHandler) GetSessions(c echo.Context) error {
	sessions, err := h.auth.GetUserSessions(authmw.GetUserID(c))
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []refreshtoken.Session{}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message":  "User sessions retrieved successfully",
		"sessions": sessions,
	})
}

func (h *AuthHandler) RevokeSession(c echo.Context) error {
	tokenID, err := strconv.ParseUint(c.Param("tokenId"), 10, 64)
	if err != nil {
		return apperror.BadRequest("Invalid session id")
	}

	result := h.auth.RevokeSession(authmw.GetUserID(c), uint(tokenID))

	return c.JSON(http.StatusOK, echo.Map{
		"message": result.Message,
		"success": result.Success,
	})
}

func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	return c.Validate(req)
}

func deviceInfo(c echo.Context) string {
	return refreshtoken.DeviceLabel(c.Request().UserAgent())
}
