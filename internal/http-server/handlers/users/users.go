package usershandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/zanzhit/station_recorder/internal/domain/errs"
	"github.com/zanzhit/station_recorder/internal/domain/models"
	"github.com/zanzhit/station_recorder/internal/http-server/handlers"
	authmiddleware "github.com/zanzhit/station_recorder/internal/http-server/middleware/auth"
	"github.com/zanzhit/station_recorder/internal/lib/api/response"
	"github.com/zanzhit/station_recorder/internal/lib/sl"
)

type UserHandler struct {
	log   *slog.Logger
	users Users
}

type Users interface {
	Users(ctx context.Context) ([]models.User, error)
	DeleteUser(ctx context.Context, id int, requester models.User) error
}

func New(log *slog.Logger, users Users) *UserHandler {
	return &UserHandler{
		log:   log,
		users: users,
	}
}

func (h *UserHandler) Users(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.Users"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	users, err := h.users.Users(r.Context())
	if err != nil {
		log.Error("failed to get users", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to get users", middleware.GetReqID(r.Context())))

		return
	}

	if users == nil {
		users = []models.User{}
	}

	render.JSON(w, r, users)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.DeleteUser"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		handlers.Error(w, r, http.StatusBadRequest, response.Error("invalid user id", ""))

		return
	}

	requester, ok := authmiddleware.UserFrom(r.Context())
	if !ok {
		log.Error("user not found in context")

		handlers.Error(w, r, http.StatusUnauthorized, response.Error("user not found", ""))

		return
	}

	if err := h.users.DeleteUser(r.Context(), id, requester); err != nil {
		switch {
		case errors.Is(err, errs.ErrUserNotFound):
			handlers.Error(w, r, http.StatusNotFound, response.Error("user not found", ""))
		case errors.Is(err, errs.ErrDeleteSelf):
			handlers.Error(w, r, http.StatusBadRequest, response.Error(errs.ErrDeleteSelf.Error(), ""))
		default:
			log.Error("failed to delete user", sl.Err(err))

			handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to delete user", middleware.GetReqID(r.Context())))
		}

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
