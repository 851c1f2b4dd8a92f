package skumaphttp

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/platform/httpx"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/skumap"
)

// Handler exposes SKU mapping maintenance as JSON endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *skumap.Service
	maxBytes int64
}

// NewHandler constructs the handler. maxBytes caps upload bodies.
func NewHandler(logger *slog.Logger, service *skumap.Service, maxBytes int64) *Handler {
	return &Handler{logger: logger, service: service, maxBytes: maxBytes}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/sku-mappings", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Post("/upload", h.upload)
		r.Get("/{id}", h.show)
		r.Delete("/{id}", h.delete)
	})
}

type createRequest struct {
	skumap.UpsertInput
	Replace bool `json:"replace"`
}

type listResponse struct {
	Items []skumap.Mapping `json:"items"`
	Total int              `json:"total"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := skumap.ListFilter{
		BrandID:  strings.TrimSpace(q.Get("brand_id")),
		PortalID: strings.TrimSpace(q.Get("portal_id")),
		Search:   q.Get("q"),
		Limit:    parseInt(q.Get("limit")),
		Offset:   parseInt(q.Get("offset")),
	}
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	if items == nil {
		items = []skumap.Mapping{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, Total: total})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	var (
		m   skumap.Mapping
		err error
	)
	if req.Replace {
		m, err = h.service.Upsert(r.Context(), req.UpsertInput)
	} else {
		m, err = h.service.Create(r.Context(), req.UpsertInput)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httpx.RespondError(w, wrapUploadError(err))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		httpx.RespondError(w, wrapUploadError(err))
		return
	}
	brandID := strings.TrimSpace(r.FormValue("brand_id"))
	portalID := strings.TrimSpace(r.FormValue("portal_id"))
	if brandID == "" || portalID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "brand_id and portal_id are required")
		return
	}
	result, err := h.service.BulkUpload(r.Context(), brandID, portalID, data)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	m, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var parseErr *sheet.ParseError
	switch {
	case errors.Is(err, skumap.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, skumap.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, skumap.ErrValidation), errors.Is(err, skumap.ErrInvalidUpload), errors.As(err, &parseErr):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("sku mapping request", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

func wrapUploadError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return errors.Join(httpx.ErrValidation, err)
}

func parseInt(value string) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || v < 0 {
		return 0
	}
	return v
}
