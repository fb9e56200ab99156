package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keepintouch/backend/apperror"
	authmw "github.com/keepintouch/backend/middleware/auth"
	"github.com/keepintouch/backend/services/user"
)

type UserHandler struct {
	users *user.Service
}

func NewUserHandler(users *user.Service) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) GetCurrentUser(c echo.Context) error {
	u := authmw.GetUser(c)
	if u == nil {
		return authmw.ErrAuthRequired
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status": "success",
		"data":   echo.Map{"user": u.CompleteProfile()},
	})
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req UpdateProfileRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if req.Name == nil && req.Username == nil {
		return apperror.BadRequest("At least one field (name or username) must be provided")
	}

	data := user.UpdateProfileData{}
	if req.Name != nil {
		data.Name = *req.Name
	}
	if req.Username != nil {
		data.Username = *req.Username
	}

	updated, err := h.users.UpdateProfile(authmw.GetUserID(c), data)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status": "success",
		"data":   echo.Map{"user": updated.CompleteProfile()},
	})
}

func (h *UserHandler) GetUserByID(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return apperror.BadRequest("Invalid user id")
	}

	u, err := h.users.FindByID(uint(id))
	if err != nil {
		return err
	}
	if u == nil {
		return user.ErrUserNotFound
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status": "success",
		"data":   echo.Map{"user": u.PublicProfile()},
	})
}

func (h *UserHandler) DeleteAccount(c echo.Context) error {
	if err := h.users.Delete(authmw.GetUserID(c)); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"message": "Account deleted successfully",
	})
}

func (h *UserHandler) Search(c echo.Context) error {
	term := c.QueryParam("q")
	if term == "" {
		return apperror.BadRequest("Search term is required")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	profiles, err := h.users.Search(term, authmw.GetUserID(c), limit)
	if err != nil {
		return err
	}
	if profiles == nil {
		profiles = []user.PublicProfile{}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status": "success",
		"data":   echo.Map{"users": profiles},
	})
}

// LookupUsers resolves a comma-separated list of user ids into display
// summaries. Unknown ids are skipped rather than erroring, so clients can
// resolve stale references in one round trip.
func (h *UserHandler) LookupUsers(c echo.Context) error {
	raw := c.QueryParam("ids")
	if raw == "" {
		return apperror.BadRequest("At least one user id is required")
	}

	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return apperror.BadRequest("User ids must be numeric")
		}
		ids = append(ids, uint(id))
	}

	users, err := h.users.GetByIDs(ids)
	if err != nil {
		return err
	}

	summaries := make([]user.Summary, 0, len(users))
	for i := range users {
		summaries = append(summaries, users[i].Summary())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status": "success",
		"data":   echo.Map{"users": summaries},
	})
}

// ListUsers is the admin-only account listing.
func (h *UserHandler) ListUsers(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	users, total, err := h.users.List(limit, offset)
	if err != nil {
		return err
	}

	profiles := make([]user.PublicProfile, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].PublicProfile())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status": "success",
		"data":   echo.Map{"users": profiles, "total": total},
	})
}
