package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lustra/kirameki/internal/catalog"
	"github.com/lustra/kirameki/internal/config"
	"github.com/lustra/kirameki/internal/extractor"
	"github.com/lustra/kirameki/internal/imaging"
	"github.com/lustra/kirameki/internal/models"
	"go.uber.org/zap"
)

// multipartMemory caps how much of an upload is buffered in memory before
// spilling to disk.
const multipartMemory = 8 << 20

func (s *Server) handleVisualSearch(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxUploadBytes > 0 {
		// Allow some slack for the multipart framing; the exact image size
		// limit is enforced against the decoded part.
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.respondError(w, http.StatusBadRequest, "expected multipart form with an image field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("image")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "image field is required")
		return
	}
	defer file.Close()
	imageBytes, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	k := 0
	if v := r.FormValue("k"); v != "" {
		k, err = strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "k must be an integer")
			return
		}
	}

	s.logger.Debug("visual search request", zap.Int("k", k), zap.Int("image_bytes", len(imageBytes)))
	response, err := s.service.Search(r.Context(), imageBytes, k)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	input, err := s.decodeItemInput(w, r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("create item request", zap.String("name", input.Name))
	item, err := s.service.AddItem(r.Context(), input)
	if err != nil {
		s.logger.Error("create item failed", zap.Error(err))
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	input, err := s.decodeItemInput(w, r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("update item request", zap.Uint64("id", id))
	item, err := s.service.UpdateItem(r.Context(), id, input)
	if err != nil {
		s.logger.Error("update item failed", zap.Uint64("id", id), zap.Error(err))
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	item, err := s.service.GetItem(r.Context(), id)
	if err != nil {
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	s.logger.Debug("delete item request", zap.Uint64("id", id))
	if err := s.service.RemoveItem(r.Context(), id); err != nil {
		s.logger.Error("delete item failed", zap.Uint64("id", id), zap.Error(err))
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	status := models.ItemStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
		return
	}
	items, err := s.service.ListItems(r.Context(), q.Get("q"), q.Get("category"), status, offset, limit)
	if err != nil {
		s.logger.Error("list items failed", zap.Error(err))
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	if items == nil {
		items = []*models.CatalogItem{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"items":      st.Items,
		"dimensions": st.Dimensions,
		"persisted":  st.Persisted,
	}
	if s.watch != nil {
		resp["watched_directories"] = s.watch.Directories()
	}
	if s.storage != nil {
		diskBytes, err := catalog.DiskUsageBytes(s.storage.DatabasePath, s.storage.KeywordIndexPath, s.storage.ImageDir)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// decodeItemInput reads an item from the request body. A JSON body carries
// the item directly; a multipart body carries it in an "item" part with an
// optional "image" file that is stored under the image directory.
func (s *Server) decodeItemInput(w http.ResponseWriter, r *http.Request) (*models.ItemInput, error) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/form-data") {
		var input models.ItemInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return nil, errors.New("invalid request body")
		}
		return &input, nil
	}

	if s.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, errors.New("invalid multipart form")
	}
	defer r.MultipartForm.RemoveAll()

	var input models.ItemInput
	itemJSON := r.FormValue("item")
	if itemJSON == "" {
		return nil, errors.New("item field is required")
	}
	if err := json.Unmarshal([]byte(itemJSON), &input); err != nil {
		return nil, errors.New("invalid item JSON")
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return &input, nil
		}
		return nil, errors.New("failed to read image")
	}
	defer file.Close()
	path, err := s.saveImage(file, header.Filename)
	if err != nil {
		return nil, err
	}
	input.ImageURL = path
	return &input, nil
}

// saveImage stores an uploaded image under the image directory with a
// generated name, keeping only the original extension.
func (s *Server) saveImage(file io.Reader, originalName string) (string, error) {
	if s.imageDir == "" {
		return "", errors.New("image uploads are not configured")
	}
	if err := os.MkdirAll(s.imageDir, 0755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	name := uuid.New().String() + strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(s.imageDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("store image: %w", err)
	}
	return path, nil
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.watchConfig == nil {
		return
	}
	s.watchConfigMu.Lock()
	s.watchConfig.Watch.Directories = s.watch.Directories()
	err := config.Save(s.configPath, s.watchConfig)
	s.watchConfigMu.Unlock()
	if err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func itemID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
}

// statusForError maps service errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, imaging.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, imaging.ErrUnsupportedFormat), errors.Is(err, imaging.ErrDecodeFailure):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, imaging.ErrEmptyImage),
		errors.Is(err, models.ErrValidation),
		errors.Is(err, catalog.ErrDimensionMismatch),
		errors.Is(err, catalog.ErrInvalidEmbedding),
		errors.Is(err, catalog.ErrMissingEmbedding):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, extractor.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, extractor.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
