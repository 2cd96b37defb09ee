package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"shortener/pkg/logging"
	"shortener/pkg/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	linkService *service.LinkService
	validator   *validator.Validate
	logger      *logging.Logger
}

func NewHandler(linkService *service.LinkService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{linkService: linkService, validator: newValidator(), logger: logger}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		code, details := validationFailure(err)
		writeError(w, http.StatusBadRequest, code, "Validation failed", details...)
		return false
	}
	return true
}

func linkID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "link not found or expired")
		return 0, false
	}
	return id, true
}

func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req service.CreateLinkRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.linkService.CreateLink(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.linkService.ListLinks(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	id, ok := linkID(w, r)
	if !ok {
		return
	}
	link, err := h.linkService.GetLink(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	id, ok := linkID(w, r)
	if !ok {
		return
	}
	var req service.UpdateLinkRequest
	if !h.decode(w, r, &req) {
		return
	}

	link, err := h.linkService.UpdateLink(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	id, ok := linkID(w, r)
	if !ok {
		return
	}
	if err := h.linkService.DeleteLink(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	id, ok := linkID(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", "limit must be a number")
			return
		}
		limit = n
	}

	analytics, err := h.linkService.Analytics(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// Redirect resolves the key and sends the visitor on. Not-found and
// expired links get the same plain 404.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	client := service.ClientContext{
		IP:        service.ExtractClientIP(r.Header.Get("X-Forwarded-For"), r.RemoteAddr),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	}

	dest, err := h.linkService.Resolve(r.Context(), chi.URLParam(r, "key"), client)
	if err != nil {
		if service.IsLinkUnavailable(err) {
			http.Error(w, "link not found or expired", http.StatusNotFound)
			return
		}
		h.logger.Error(r.Context(), "redirect failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// Every visit must reach us to be counted.
	w.Header().Set("Cache-Control", "private, no-store")
	http.Redirect(w, r, dest, http.StatusFound)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
