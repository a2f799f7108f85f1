package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/database"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/internal/storage"
	"backoffice/internal/tenancy"
	"backoffice/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

func init() {
	gin.SetMode(gin.TestMode)
	if err := validation.Register(); err != nil {
		panic(err)
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

type testEnv struct {
	router    *gin.Engine
	companyID uuid.UUID
}

// newTestEnv wires the document, tag and tax handlers over sqlite with a
// TENANT_ADMIN principal injected in place of the cookie check
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := database.NewTestDB(t)
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	tenant := model.Tenant{Name: "Acme", Slug: "acme-" + uuid.NewString()[:8], Status: model.TenantActive}
	if err := db.Create(&tenant).Error; err != nil {
		t.Fatalf("Failed to seed tenant: %v", err)
	}
	admin := model.User{TenantID: &tenant.ID, Email: uuid.NewString()[:8] + "@acme.test", Name: "Admin", Password: "x", SystemRole: model.SystemRoleTenantAdmin, IsActive: true}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	company := model.Company{TenantID: tenant.ID, Name: "Acme Pte Ltd", UEN: "201912345A", HomeCurrency: "SGD", IsActive: true}
	if err := db.Create(&company).Error; err != nil {
		t.Fatalf("Failed to seed company: %v", err)
	}
	principal := &tenancy.Principal{UserID: admin.ID, TenantID: &tenant.ID, Email: admin.Email, SystemRole: model.SystemRoleTenantAdmin}

	tx := repository.NewTransactionManager(db)
	audit := service.NewAuditService(repository.NewAuditRepository(db))
	docs := repository.NewDocumentRepository(db)
	revisions := repository.NewRevisionRepository(db)
	companies := repository.NewCompanyRepository(db)
	contacts := repository.NewContactRepository(db)
	tags := repository.NewTagRepository(db)
	taxCodes := repository.NewTaxCodeRepository(db)

	documentService := service.NewDocumentService(docs, revisions, tags, companies, store, nil, audit, tx, nil, 1<<20)
	revisionService := service.NewRevisionService(docs, revisions, companies, contacts, taxCodes, audit, tx, nil)
	exportService := service.NewExportService(docs, audit)

	router := gin.New()
	group := router.Group("", func(c *gin.Context) {
		c.Request = c.Request.WithContext(tenancy.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	})
	NewDocumentHandler(documentService, revisionService, exportService, 1<<20).RegisterRoutes(group)
	NewTagHandler(service.NewTagService(tags, companies, audit, tx)).RegisterRoutes(group)
	NewTaxHandler(service.NewTaxService(taxCodes, audit, tx)).RegisterRoutes(group)

	return &testEnv{router: router, companyID: company.ID}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return e.serve(t, req)
}

func (e *testEnv) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("Expected JSON envelope, got %q", w.Body.String())
		}
	}
	return w, env
}

func (e *testEnv) upload(t *testing.T, fileName string, content []byte, fields map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if content != nil {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		part.Write(content)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/processing-documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.serve(t, req)
}

func TestUploadDocumentHandler(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		content  []byte
		fields   map[string]string
		wantCode int
		wantErr  string
	}{
		{"png with snake_case company", pngBytes, map[string]string{"company_id": env.companyID.String(), "auto_extract": "false"}, http.StatusCreated, ""},
		{"camelCase company field", append(append([]byte{}, pngBytes...), 'x'), map[string]string{"companyId": env.companyID.String(), "auto_extract": "false"}, http.StatusCreated, ""},
		{"text file", []byte("hello world"), map[string]string{"company_id": env.companyID.String()}, http.StatusBadRequest, string(apperr.CodeValidation)},
		{"missing file", nil, map[string]string{"company_id": env.companyID.String()}, http.StatusBadRequest, string(apperr.CodeValidation)},
		{"unknown company", pngBytes, map[string]string{"company_id": uuid.NewString()}, http.StatusNotFound, string(apperr.CodeNotFound)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := env.upload(t, "scan.png", tt.content, tt.fields)
			if w.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.wantErr != "" && (body.Error == nil || body.Error.Code != tt.wantErr) {
				t.Errorf("Expected error code %s, got %s", tt.wantErr, w.Body.String())
			}
			if tt.wantErr == "" && !body.Success {
				t.Errorf("Expected success envelope, got %s", w.Body.String())
			}
		})
	}
}

func TestDocumentLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.upload(t, "invoice.png", pngBytes, map[string]string{"company_id": env.companyID.String(), "auto_extract": "false"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var doc service.DocumentResponse
	if err := json.Unmarshal(body.Data, &doc); err != nil {
		t.Fatalf("Failed to decode document: %v", err)
	}
	base := "/api/processing-documents/" + doc.ID

	w, body = env.do(t, http.MethodGet, "/api/processing-documents?company_id="+env.companyID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on list, got %d", w.Code)
	}
	var page struct {
		Items []service.DocumentResponse `json:"items"`
		Total int64                      `json:"total"`
	}
	if err := json.Unmarshal(body.Data, &page); err != nil || page.Total != 1 {
		t.Errorf("Expected one listed document, got %s", string(body.Data))
	}

	w, body = env.do(t, http.MethodPost, base+"/revisions", map[string]interface{}{
		"lock_version":    doc.LockVersion,
		"vendor_name":     "Globex",
		"document_number": "G-1",
		"document_date":   "2024-02-02",
		"subtotal":        "100",
		"tax_amount":      "9",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 on revision create, got %d: %s", w.Code, w.Body.String())
	}
	var mutation service.RevisionMutation
	if err := json.Unmarshal(body.Data, &mutation); err != nil {
		t.Fatalf("Failed to decode revision: %v", err)
	}
	if mutation.Revision.TotalAmount != "109.00" {
		t.Errorf("Expected total 109.00, got %s", mutation.Revision.TotalAmount)
	}

	w, body = env.do(t, http.MethodPost, base+"/revisions/"+mutation.Revision.ID+"/approve", map[string]interface{}{"lock_version": doc.LockVersion})
	if w.Code != http.StatusConflict || body.Error == nil || body.Error.Code != string(apperr.CodeConflict) {
		t.Errorf("Expected stale approve to be CONFLICT, got %d: %s", w.Code, w.Body.String())
	}
	w, _ = env.do(t, http.MethodPost, base+"/revisions/"+mutation.Revision.ID+"/approve", map[string]interface{}{"lock_version": mutation.LockVersion})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected approve, got %d: %s", w.Code, w.Body.String())
	}

	w, _ = env.do(t, http.MethodGet, "/api/processing-documents/export?company_id="+env.companyID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected export, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Export-Rows"); got != "1" {
		t.Errorf("Expected X-Export-Rows 1, got %q", got)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), ".xlsx") {
		t.Errorf("Expected xlsx attachment, got %q", w.Header().Get("Content-Disposition"))
	}

	w, _ = env.do(t, http.MethodGet, base+"/file", nil)
	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), pngBytes) {
		t.Errorf("Expected original bytes streamed, got %d (%d bytes)", w.Code, w.Body.Len())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %q", ct)
	}
}

func TestDeleteRequiresLockVersion(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.NewString()

	tests := []struct {
		query    string
		wantCode int
	}{
		{"", http.StatusBadRequest},
		{"?lock_version=abc", http.StatusBadRequest},
		{"?lock_version=-1", http.StatusBadRequest},
		{"?lock_version=0", http.StatusNotFound},
	}
	for _, tt := range tests {
		w, _ := env.do(t, http.MethodDelete, "/api/processing-documents/"+id+tt.query, nil)
		if w.Code != tt.wantCode {
			t.Errorf("DELETE %s: expected %d, got %d", tt.query, tt.wantCode, w.Code)
		}
	}
}

func TestBindJSONErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"name":`},
		{"wrong type", `{"name": 5}`},
		{"missing required", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/tags", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w, body := env.serve(t, req)
			if w.Code != http.StatusBadRequest || body.Error == nil || body.Error.Code != string(apperr.CodeValidation) {
				t.Errorf("Expected VALIDATION_ERROR, got %d: %s", w.Code, w.Body.String())
			}
		})
	}

	w, _ := env.do(t, http.MethodPost, "/api/tags", map[string]string{"name": "Reviewed", "color": "#00aa00"})
	if w.Code != http.StatusCreated {
		t.Errorf("Expected tag to be created, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTaxCodeConflictOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	payload := map[string]string{"code": "SR", "rate": "0.09", "effective_from": "2024-01-01"}

	if w, _ := env.do(t, http.MethodPost, "/api/tax-codes", payload); w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w, body := env.do(t, http.MethodPost, "/api/tax-codes", payload)
	if w.Code != http.StatusConflict || body.Error == nil || body.Error.Code != string(apperr.CodeConflict) {
		t.Errorf("Expected CONFLICT, got %d: %s", w.Code, w.Body.String())
	}

	w, body = env.do(t, http.MethodGet, "/api/tax-codes/active?code=sr&on=2024-06-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected active rate, got %d: %s", w.Code, w.Body.String())
	}
	var rate service.ActiveTaxRateResponse
	if err := json.Unmarshal(body.Data, &rate); err != nil || rate.Rate != "0.0900" {
		t.Errorf("Expected rate 0.0900, got %s", string(body.Data))
	}
}

func TestParseStatDate(t *testing.T) {
	tests := []struct {
		raw      string
		endOfDay bool
		want     time.Time
		ok       bool
	}{
		{"2024-03-01", false, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-01", true, time.Date(2024, 3, 1, 23, 59, 59, 999999999, time.UTC), true},
		{"2024-03-01T10:00:00Z", true, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), true},
		{"01/03/2024", false, time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := parseStatDate(tt.raw, tt.endOfDay)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("parseStatDate(%q, %v) = %v %v, want %v %v", tt.raw, tt.endOfDay, got, ok, tt.want, tt.ok)
		}
	}
}
