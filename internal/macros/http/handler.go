package macroshttp

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/macros"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/platform/httpx"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/portal"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/report"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/skumap"
)

// Handler exposes the reconciliation pipeline over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *macros.Service
	maxBytes int64
}

// NewHandler constructs the handler. maxBytes caps upload bodies.
func NewHandler(logger *slog.Logger, service *macros.Service, maxBytes int64) *Handler {
	return &Handler{logger: logger, service: service, maxBytes: maxBytes}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/macros", func(r chi.Router) {
		r.Post("/generate", h.generate)
		r.Post("/jobs", h.submit)
		r.Get("/files", h.list)
		r.Get("/files/{id}", h.show)
		r.Get("/files/{id}/download", h.download)
		r.Post("/files/{id}/retry", h.retry)
	})
}

// generate runs the pipeline inline and streams the workbook back.
func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	req, err := h.readRequest(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	out, rec, err := h.service.Generate(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	if rec.ID != uuid.Nil {
		w.Header().Set("X-Macros-File-ID", rec.ID.String())
	}
	w.Header().Set("X-Macros-Rows", strconv.Itoa(out.Counts.Rows))
	w.Header().Set("X-Macros-Dropped", strconv.Itoa(out.Counts.Dropped))
	writeWorkbook(w, out.Filename, out.Workbook)
}

// submit stores the export and hands it to the worker.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	req, err := h.readRequest(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	rec, err := h.service.Submit(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	status := http.StatusAccepted
	if rec.Status == macros.StatusCompleted {
		status = http.StatusOK
	}
	httpx.JSON(w, status, rec)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	items, err := h.service.List(r.Context(), macros.ListFilter{
		BrandID:  strings.TrimSpace(q.Get("brand_id")),
		PortalID: strings.TrimSpace(q.Get("portal_id")),
		Status:   macros.Status(strings.TrimSpace(q.Get("status"))),
		Limit:    limit,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	if items == nil {
		items = []macros.FileRecord{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rec, data, err := h.service.Download(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeWorkbook(w, report.Filename("macros", string(rec.Portal), rec.Period), data)
}

// retry reruns a halted record once its SKU mappings are fixed.
func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Retry(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) readRequest(w http.ResponseWriter, r *http.Request) (macros.GenerateRequest, error) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return macros.GenerateRequest{}, err
		}
		return macros.GenerateRequest{}, errors.Join(macros.ErrValidation, err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return macros.GenerateRequest{}, errors.Join(macros.ErrValidation, errors.New("file is required"))
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return macros.GenerateRequest{}, err
	}
	kind := r.FormValue("portal")
	if kind == "" {
		kind = r.FormValue("portal_type")
	}
	return macros.GenerateRequest{
		BrandID:    r.FormValue("brand_id"),
		PortalID:   r.FormValue("portal_id"),
		Portal:     portal.Kind(kind),
		Period:     r.FormValue("period"),
		HomeState:  r.FormValue("home_state"),
		SourceName: header.Filename,
		Data:       data,
	}, nil
}

func writeWorkbook(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var (
		missing   *skumap.MissingSKUError
		parseErr  *sheet.ParseError
		columnErr *portal.ColumnError
		maxErr    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &missing):
		httpx.ProblemWith(w, http.StatusUnprocessableEntity, "Unmapped SKUs", err.Error(), map[string]any{
			"brand_id":     missing.BrandID,
			"portal_id":    missing.PortalID,
			"missing_skus": missing.SKUs,
		})
	case errors.As(err, &columnErr):
		missingCols := make([]string, 0, len(columnErr.Missing))
		for _, f := range columnErr.Missing {
			missingCols = append(missingCols, string(f))
		}
		httpx.ProblemWith(w, http.StatusUnprocessableEntity, "Missing Columns", err.Error(), map[string]any{
			"portal":          columnErr.Portal,
			"missing_columns": missingCols,
		})
	case errors.As(err, &maxErr):
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Payload Too Large", err.Error())
	case errors.As(err, &parseErr), errors.Is(err, macros.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, macros.ErrFileNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, macros.ErrNoArtifact):
		httpx.Problem(w, http.StatusConflict, "Not Ready", err.Error())
	case errors.Is(err, macros.ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Invalid Status", err.Error())
	case errors.Is(err, macros.ErrInProgress):
		httpx.Problem(w, http.StatusConflict, "In Progress", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("macros request", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
