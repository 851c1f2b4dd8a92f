package mishttp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/mis"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/platform/httpx"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/report"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"
)

// Handler exposes MIS formats and report generation.
type Handler struct {
	logger   *slog.Logger
	service  *mis.Service
	maxBytes int64
}

// NewHandler constructs the handler. maxBytes caps request bodies.
func NewHandler(logger *slog.Logger, service *mis.Service, maxBytes int64) *Handler {
	return &Handler{logger: logger, service: service, maxBytes: maxBytes}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/mis", func(r chi.Router) {
		r.Get("/formats", h.listFormats)
		r.Post("/formats", h.createFormat)
		r.Get("/formats/{id}", h.showFormat)
		r.Delete("/formats/{id}", h.deleteFormat)
		r.Post("/generate", h.generate)
	})
}

func (h *Handler) listFormats(w http.ResponseWriter, r *http.Request) {
	formats, err := h.service.ListFormats(r.Context(), strings.TrimSpace(r.URL.Query().Get("brand_id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	if formats == nil {
		formats = []mis.Format{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": formats})
}

func (h *Handler) createFormat(w http.ResponseWriter, r *http.Request) {
	var in mis.CreateFormatInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	f, err := h.service.CreateFormat(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, f)
}

func (h *Handler) showFormat(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	f, err := h.service.GetFormat(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) deleteFormat(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := h.service.DeleteFormat(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type generateBody struct {
	BrandID      string           `json:"brand_id"`
	FormatID     *uuid.UUID       `json:"format_id"`
	Rules        []mis.FormatRule `json:"rules"`
	Policy       string           `json:"policy"`
	Title        string           `json:"title"`
	TrialBalance json.RawMessage  `json:"trial_balance"`
}

// generate accepts either a JSON body with an inline trial balance or a
// multipart upload of the trial balance spreadsheet. The workbook is returned
// unless ?format=json asks for the evaluated rows.
func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	var (
		req mis.GenerateRequest
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		req, err = h.multipartRequest(r)
	} else {
		req, err = h.jsonRequest(r)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.service.Generate(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		httpx.JSON(w, http.StatusOK, newReportBody(res.Report))
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+res.Filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Workbook)
}

type reportRow struct {
	Name    string                 `json:"name"`
	Formula string                 `json:"formula"`
	Values  map[string]json.Number `json:"values"`
	Total   json.Number            `json:"total"`
	Error   string                 `json:"error,omitempty"`
}

type reportBody struct {
	Months []string    `json:"months"`
	Rows   []reportRow `json:"rows"`
}

// newReportBody renders amounts as JSON numbers carrying the exact decimal
// digits.
func newReportBody(rep mis.Report) reportBody {
	body := reportBody{Months: rep.Months, Rows: make([]reportRow, 0, len(rep.Rows))}
	for _, row := range rep.Rows {
		out := reportRow{
			Name:    row.Name,
			Formula: row.Formula,
			Values:  make(map[string]json.Number, len(row.Values)),
			Total:   json.Number(row.Total.String()),
			Error:   row.Error,
		}
		for month, v := range row.Values {
			out.Values[month] = json.Number(v.String())
		}
		body.Rows = append(body.Rows, out)
	}
	return body
}

func (h *Handler) jsonRequest(r *http.Request) (mis.GenerateRequest, error) {
	var body generateBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		return mis.GenerateRequest{}, invalid(err)
	}
	policy, err := parsePolicy(body.Policy)
	if err != nil {
		return mis.GenerateRequest{}, invalid(err)
	}
	if len(body.TrialBalance) == 0 {
		return mis.GenerateRequest{}, invalid(errors.New("trial_balance is required"))
	}
	tb, err := mis.ParseTrialBalanceJSON(body.TrialBalance)
	if err != nil {
		return mis.GenerateRequest{}, err
	}
	return mis.GenerateRequest{
		BrandID:      strings.TrimSpace(body.BrandID),
		FormatID:     body.FormatID,
		Rules:        body.Rules,
		TrialBalance: tb,
		Policy:       policy,
		Title:        body.Title,
	}, nil
}

func (h *Handler) multipartRequest(r *http.Request) (mis.GenerateRequest, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return mis.GenerateRequest{}, invalid(err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return mis.GenerateRequest{}, invalid(errors.New("file is required"))
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return mis.GenerateRequest{}, invalid(err)
	}

	var tb *mis.TrialBalance
	if strings.HasSuffix(strings.ToLower(header.Filename), ".json") {
		tb, err = mis.ParseTrialBalanceJSON(data)
	} else {
		var table *sheet.Table
		table, err = sheet.ReadFormat(data, sheet.FormatFromName(header.Filename))
		if err == nil {
			tb, err = mis.TrialBalanceFromTable(table)
		}
	}
	if err != nil {
		return mis.GenerateRequest{}, err
	}

	policy, err := parsePolicy(r.FormValue("policy"))
	if err != nil {
		return mis.GenerateRequest{}, invalid(err)
	}
	req := mis.GenerateRequest{
		BrandID:      strings.TrimSpace(r.FormValue("brand_id")),
		TrialBalance: tb,
		Policy:       policy,
		Title:        r.FormValue("title"),
	}
	if raw := strings.TrimSpace(r.FormValue("format_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return mis.GenerateRequest{}, invalid(errors.New("invalid format_id"))
		}
		req.FormatID = &id
	}
	if raw := strings.TrimSpace(r.FormValue("rules")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Rules); err != nil {
			return mis.GenerateRequest{}, invalid(errors.New("rules must be a JSON array"))
		}
	}
	return req, nil
}

// parsePolicy leaves a blank policy empty so the service default applies.
func parsePolicy(s string) (mis.Policy, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return mis.ParsePolicy(s)
}

func invalid(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return errors.Join(mis.ErrValidation, err)
}

type ruleProblem struct {
	Rule    string `json:"rule"`
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Operand string `json:"operand,omitempty"`
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var (
		parseErr *sheet.ParseError
		ruleErr  *mis.RuleError
		maxErr   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ruleErr):
		problem := ruleProblem{Rule: ruleErr.Rule, Index: ruleErr.Index, Kind: mis.FailureKind(err)}
		var unknown *mis.UnknownOperandError
		if errors.As(err, &unknown) {
			problem.Operand = unknown.Operand
		}
		var dep *mis.InvalidDependencyError
		if errors.As(err, &dep) {
			problem.Operand = dep.Operand
		}
		httpx.ProblemWith(w, http.StatusUnprocessableEntity, "Formula Evaluation Failed", err.Error(), map[string]any{"rule_error": problem})
	case errors.As(err, &maxErr):
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Payload Too Large", err.Error())
	case errors.Is(err, mis.ErrFormatNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, mis.ErrFormatExists):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, mis.ErrValidation), errors.Is(err, mis.ErrTrialBalance), errors.As(err, &parseErr):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("mis request", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
