package macroshttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/macros"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/portal"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/report"
	"github.com/Jayes-h/fintech-process-automation-sub001/internal/skumap"
	_ "github.com/Jayes-h/fintech-process-automation-sub001/testing"
)

const flipkartCSV = "SKU,Quantity,Taxable Value,IGST Amount,Event Type,Delivery State,Order Date\n" +
	"FK-1,1,100,18,Sale,Kerala,2024-05-02\n" +
	"FK-2,2,200,36,Sale,Kerala,2024-05-03\n" +
	"FK-9,1,50,9,Sale,Goa,2024-05-04\n"

type staticResolver struct {
	table *skumap.Table
}

func (r staticResolver) ResolveBatch(_ context.Context, _, _ string, skus []string) (skumap.Resolution, error) {
	return r.table.Resolve(skus), nil
}

func newRouter(t *testing.T, pairs ...skumap.Pair) chi.Router {
	t.Helper()
	reg, err := portal.DefaultRegistry()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipeline := macros.NewPipeline(reg, staticResolver{table: skumap.NewTable("b1", "fk", pairs, false)})
	svc := macros.NewService(pipeline, nil, logger, macros.ServiceOptions{Storage: macros.NewDirStorage(t.TempDir())})
	r := chi.NewRouter()
	NewHandler(logger, svc, 1<<20).MountRoutes(r)
	return r
}

func upload(t *testing.T, r http.Handler, fields map[string]string, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if name != "" {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, _ = fw.Write([]byte(content))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/macros/generate", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

var flipkartFields = map[string]string{"brand_id": "b1", "portal_id": "fk", "portal": "flipkart", "period": "2024-05"}

func TestGenerateReturnsWorkbook(t *testing.T) {
	r := newRouter(t,
		skumap.Pair{PortalSKU: "FK-1", LedgerSKU: "Mug"},
		skumap.Pair{PortalSKU: "FK-2", LedgerSKU: "Mug"},
		skumap.Pair{PortalSKU: "FK-9", LedgerSKU: "Plate"},
	)
	rec := upload(t, r, flipkartFields, "flipkart.csv", flipkartCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, report.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "macros_flipkart_2024-05.xlsx")
	assert.Equal(t, "3", rec.Header().Get("X-Macros-Rows"))
	assert.Equal(t, []byte("PK"), rec.Body.Bytes()[:2])
}

func TestGenerateReportsMissingSKUs(t *testing.T) {
	r := newRouter(t, skumap.Pair{PortalSKU: "FK-1", LedgerSKU: "Mug"})
	rec := upload(t, r, flipkartFields, "flipkart.csv", flipkartCSV)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		MissingSKUs []string `json:"missing_skus"`
		PortalID    string   `json:"portal_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"FK-2", "FK-9"}, body.MissingSKUs)
	assert.Equal(t, "fk", body.PortalID)
}

func TestGenerateValidation(t *testing.T) {
	r := newRouter(t)

	rec := upload(t, r, flipkartFields, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	fields := map[string]string{"brand_id": "b1", "portal_id": "amz", "portal": "amazon"}
	rec = upload(t, r, fields, "amazon.csv", "SKU,Quantity\nA,1\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "explicit file type")

	rec = upload(t, r, flipkartFields, "flipkart.csv", "Order Id,Price\n1,2\n")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_columns")
}

func TestFilesWithoutRepository(t *testing.T) {
	r := newRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/macros/files?brand_id=b1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/macros/files/not-a-uuid", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/macros/files/"+uuid.NewString()+"/retry", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
