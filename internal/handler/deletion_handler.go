package handler

import (
	"errors"
	"net/http"
	"time"

	"xfercache/internal/domain"
	"xfercache/internal/service"
)

type DeletionHandler struct {
	users     service.UserCatalog
	volumes   service.VolumeCatalog
	deletions service.DeletionCatalog
	predictor *service.Predictor
}

func NewDeletionHandler(users service.UserCatalog, volumes service.VolumeCatalog, deletions service.DeletionCatalog, predictor *service.Predictor) *DeletionHandler {
	return &DeletionHandler{
		users:     users,
		volumes:   volumes,
		deletions: deletions,
		predictor: predictor,
	}
}

type deletionEntry struct {
	Name        string    `json:"name"`
	TimeEntered time.Time `json:"time_entered"`
	TimeDelete  time.Time `json:"time_delete"`
	Mountpoint  string    `json:"mountpoint"`
	Files       []string  `json:"files"`
}

// ListDeletions отдаёт необработанные отложенные удаления пользователя.
func (h *DeletionHandler) ListDeletions(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookupUser(w, r)
	if !ok {
		return
	}

	volume, err := h.volumes.GetByID(r.Context(), user.VolumeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	deletions, err := h.deletions.ListByUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entries := make([]deletionEntry, 0, len(deletions))
	for i := range deletions {
		paths := make([]string, 0, len(deletions[i].Files))
		for j := range deletions[i].Files {
			paths = append(paths, deletions[i].Files[j].Path)
		}
		entries = append(entries, deletionEntry{
			Name:        user.Name,
			TimeEntered: deletions[i].TimeEntered,
			TimeDelete:  deletions[i].TimeDelete,
			Mountpoint:  volume.Mountpoint,
			Files:       paths,
		})
	}

	writeJSON(w, http.StatusOK, entries)
}

// Predict отдаёт read-only прогноз следующего удаления.
func (h *DeletionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookupUser(w, r)
	if !ok {
		return
	}

	projection, err := h.predictor.Predict(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, projection)
}

func (h *DeletionHandler) lookupUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name parameter is required")
		return nil, false
	}

	user, err := h.users.GetByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}

	return user, true
}
