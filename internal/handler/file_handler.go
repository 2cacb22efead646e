package handler

import (
	"errors"
	"net/http"
	"time"

	"xfercache/internal/domain"
	"xfercache/internal/service"
)

type FileHandler struct {
	users   service.UserCatalog
	files   service.FileCatalog
	volumes service.VolumeCatalog
}

func NewFileHandler(users service.UserCatalog, files service.FileCatalog, volumes service.VolumeCatalog) *FileHandler {
	return &FileHandler{
		users:   users,
		files:   files,
		volumes: volumes,
	}
}

type fileEntry struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	FirstSeen time.Time `json:"first_seen"`
}

// ListFiles отдаёт записи пользователя: ?name=u — обязателен, ?match=sub —
// фильтр по подстроке пути, ?full=1 — разворачивать пути до абсолютных.
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name parameter is required")
		return
	}

	user, err := h.users.GetByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	match := r.URL.Query().Get("match")
	files, err := h.files.ListByUserMatch(r.Context(), user.ID, match)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var volume *domain.CacheVolume
	if r.URL.Query().Get("full") == "1" {
		volume, err = h.volumes.GetByID(r.Context(), user.VolumeID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	entries := make([]fileEntry, 0, len(files))
	for i := range files {
		p := files[i].Path
		if volume != nil {
			p = files[i].FullPath(volume)
		}
		entries = append(entries, fileEntry{
			Path:      p,
			Size:      files[i].Size,
			FirstSeen: files[i].FirstSeen,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":  user.Name,
		"files": entries,
	})
}
