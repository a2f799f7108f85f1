package service

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"backoffice/internal/database"
	"backoffice/internal/extractor"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/storage"
	"backoffice/internal/tenancy"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// pngBytes carries a valid PNG signature followed by padding
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

type recordingQueue struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (q *recordingQueue) Enqueue(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []DocumentEvent
}

func (n *recordingNotifier) PublishDocument(ev DocumentEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) last() (DocumentEvent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return DocumentEvent{}, false
	}
	return n.events[len(n.events)-1], true
}

type fakeExtractor struct {
	result *extractor.Result
	err    error
}

func (f fakeExtractor) Extract(context.Context, extractor.Input) (*extractor.Result, error) {
	return f.result, f.err
}

type fixture struct {
	db       *gorm.DB
	tx       repository.TransactionManager
	store    *storage.LocalStore
	tenantID uuid.UUID
	admin    model.User
	company  model.Company
	ctx      context.Context
	queue    *recordingQueue
	notifier *recordingNotifier
	audit    AuditService

	docs      repository.DocumentRepository
	revisions repository.RevisionRepository
	companies repository.CompanyRepository
	contacts  repository.ContactRepository
	tags      repository.TagRepository
	taxCodes  repository.TaxCodeRepository
}

// newFixture seeds one tenant with a TENANT_ADMIN and an SGD company
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := database.NewTestDB(t)
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Expected local store, got %v", err)
	}

	tenant := model.Tenant{Name: "Acme Accounting", Slug: "acme-" + uuid.NewString()[:8], Status: model.TenantActive}
	if err := db.Create(&tenant).Error; err != nil {
		t.Fatalf("Failed to seed tenant: %v", err)
	}
	admin := model.User{
		TenantID:   &tenant.ID,
		Email:      "admin+" + uuid.NewString()[:8] + "@acme.test",
		Name:       "Admin",
		Password:   "x",
		SystemRole: model.SystemRoleTenantAdmin,
		IsActive:   true,
	}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	company := model.Company{TenantID: tenant.ID, Name: "Acme Pte Ltd", UEN: "201912345A", HomeCurrency: "SGD", IsActive: true}
	if err := db.Create(&company).Error; err != nil {
		t.Fatalf("Failed to seed company: %v", err)
	}

	ctx := tenancy.WithPrincipal(context.Background(), &tenancy.Principal{
		UserID:     admin.ID,
		TenantID:   &tenant.ID,
		Email:      admin.Email,
		SystemRole: model.SystemRoleTenantAdmin,
	})

	return &fixture{
		db:        db,
		tx:        repository.NewTransactionManager(db),
		store:     store,
		tenantID:  tenant.ID,
		admin:     admin,
		company:   company,
		ctx:       ctx,
		queue:     &recordingQueue{},
		notifier:  &recordingNotifier{},
		audit:     NewAuditService(repository.NewAuditRepository(db)),
		docs:      repository.NewDocumentRepository(db),
		revisions: repository.NewRevisionRepository(db),
		companies: repository.NewCompanyRepository(db),
		contacts:  repository.NewContactRepository(db),
		tags:      repository.NewTagRepository(db),
		taxCodes:  repository.NewTaxCodeRepository(db),
	}
}

func (f *fixture) documentService() DocumentService {
	return NewDocumentService(f.docs, f.revisions, f.tags, f.companies, f.store, f.queue, f.audit, f.tx, f.notifier, 1<<20)
}

func (f *fixture) revisionService() RevisionService {
	return NewRevisionService(f.docs, f.revisions, f.companies, f.contacts, f.taxCodes, f.audit, f.tx, f.notifier)
}

func (f *fixture) extractionService(ex extractor.Extractor, maxAttempts int) *extractionService {
	svc := NewExtractionService(f.docs, f.revisions, f.companies, f.contacts, f.taxCodes, ex, f.store, f.audit, f.tx, f.notifier,
		ExtractionOptions{Workers: 1, MaxAttempts: maxAttempts})
	return svc.(*extractionService)
}

// upload stores pngBytes plus a suffix so each call hashes differently unless suffix repeats
func (f *fixture) upload(t *testing.T, svc DocumentService, suffix string, autoExtract bool) *DocumentResponse {
	t.Helper()
	content := append(append([]byte{}, pngBytes...), suffix...)
	doc, err := svc.Upload(f.ctx, UploadDocumentInput{
		CompanyID:   f.company.ID.String(),
		FileName:    "invoice-" + suffix + ".png",
		Content:     bytes.NewReader(content),
		AutoExtract: autoExtract,
	})
	if err != nil {
		t.Fatalf("Expected upload to succeed, got %v", err)
	}
	return doc
}

func (f *fixture) auditCount(t *testing.T, action string) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&model.AuditLog{}).Where("action = ?", action).Count(&n).Error; err != nil {
		t.Fatalf("Failed to count audit rows: %v", err)
	}
	return n
}

func intPtr(v int) *int { return &v }
func strPtr(v string) *string { return &v }

// otherTenant seeds a second tenant and returns a TENANT_ADMIN context inside it
func (f *fixture) otherTenant(t *testing.T) (uuid.UUID, context.Context) {
	t.Helper()
	tenant := model.Tenant{Name: "Globex Advisory", Slug: "globex-" + uuid.NewString()[:8], Status: model.TenantActive}
	if err := f.db.Create(&tenant).Error; err != nil {
		t.Fatalf("Failed to seed tenant: %v", err)
	}
	admin := model.User{
		TenantID:   &tenant.ID,
		Email:      "admin+" + uuid.NewString()[:8] + "@globex.test",
		Name:       "Globex Admin",
		Password:   "x",
		SystemRole: model.SystemRoleTenantAdmin,
		IsActive:   true,
	}
	if err := f.db.Create(&admin).Error; err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	return tenant.ID, tenancy.WithPrincipal(context.Background(), &tenancy.Principal{
		UserID:     admin.ID,
		TenantID:   &tenant.ID,
		Email:      admin.Email,
		SystemRole: model.SystemRoleTenantAdmin,
	})
}

func (f *fixture) companyService() CompanyService {
	return NewCompanyService(f.companies, f.audit, f.tx)
}
