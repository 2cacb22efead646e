package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"xfercache/internal/domain"
	"xfercache/internal/service"
)

type UserHandler struct {
	users     service.UserCatalog
	volumes   service.VolumeCatalog
	locks     service.LockCatalog
	allocator *service.Allocator
}

func NewUserHandler(users service.UserCatalog, volumes service.VolumeCatalog, locks service.LockCatalog, allocator *service.Allocator) *UserHandler {
	return &UserHandler{
		users:     users,
		volumes:   volumes,
		locks:     locks,
		allocator: allocator,
	}
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	names := make([]string, 0, len(users))
	for i := range users {
		names = append(names, users[i].Name)
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": names})
}

// GetUser возвращает снимок квоты и использования пользователя.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	user, err := h.users.GetByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	volume, err := h.volumes.GetByID(r.Context(), user.VolumeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, domain.QuotaInfo{
		Name:          user.Name,
		Email:         user.Email,
		Notify:        user.Notify,
		QuotaSize:     user.QuotaSize,
		QuotaUsed:     user.QuotaUsed,
		HardLimitSize: user.HardLimitSize,
		TotalUsed:     user.TotalUsed,
		Mountpoint:    volume.Mountpoint,
		CachePath:     user.CachePath,
	})
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Email  string `json:"email"`
		Notify bool   `json:"notify"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	user, err := h.allocator.CreateUser(r.Context(), req.Name, req.Email, req.Notify)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserExists):
			writeError(w, http.StatusConflict, "user already exists")
		case errors.Is(err, domain.ErrNoFreeVolume):
			writeError(w, http.StatusInsufficientStorage, "no cache volume with enough free space")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// UnlockUser — админская ручка для снятия зависшей блокировки (процесс умер,
// не сняв её). Идемпотентна.
func (h *UserHandler) UnlockUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	user, err := h.users.GetByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.locks.Release(r.Context(), user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
