package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/rbac"
	"backoffice/internal/service"
	"backoffice/internal/tenancy"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func TestClientReceives(t *testing.T) {
	tenantA, tenantB := uuid.New(), uuid.New()
	companyA, companyOther := uuid.New(), uuid.New()

	ev := service.DocumentEvent{Type: service.EventDocumentUpdated, DocumentID: uuid.New(), TenantID: tenantA, CompanyID: companyA}

	tests := []struct {
		name      string
		principal *tenancy.Principal
		want      bool
	}{
		{"tenant admin of the tenant", &tenancy.Principal{TenantID: &tenantA, SystemRole: model.SystemRoleTenantAdmin}, true},
		{"tenant admin elsewhere", &tenancy.Principal{TenantID: &tenantB, SystemRole: model.SystemRoleTenantAdmin}, false},
		{"super admin without tenant", &tenancy.Principal{SystemRole: model.SystemRoleSuperAdmin}, true},
		{"user without tenant", &tenancy.Principal{SystemRole: model.SystemRoleUser}, false},
		{"user scoped to the company", &tenancy.Principal{
			TenantID:   &tenantA,
			SystemRole: model.SystemRoleUser,
			Assignments: []rbac.Assignment{{
				CompanyID:   &companyA,
				Permissions: []rbac.Permission{{Resource: rbac.ResourceDocuments, Action: rbac.ActionRead}},
			}},
		}, true},
		{"user scoped to another company", &tenancy.Principal{
			TenantID:   &tenantA,
			SystemRole: model.SystemRoleUser,
			Assignments: []rbac.Assignment{{
				CompanyID:   &companyOther,
				Permissions: []rbac.Permission{{Resource: rbac.ResourceDocuments, Action: rbac.ActionRead}},
			}},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{principal: tt.principal}
			if got := c.receives(ev); got != tt.want {
				t.Errorf("Expected receives = %v, got %v", tt.want, got)
			}
		})
	}
}

func TestHubDeliversDocumentEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	tenantID := uuid.New()
	principal := &tenancy.Principal{UserID: uuid.New(), TenantID: &tenantID, SystemRole: model.SystemRoleTenantAdmin}

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		c.Request = c.Request.WithContext(tenancy.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}, hub.ServeWs)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Expected websocket upgrade, got %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("Expected 101, got %d", resp.StatusCode)
	}

	want := service.DocumentEvent{
		Type:           service.EventDocumentUpdated,
		DocumentID:     uuid.New(),
		TenantID:       tenantID,
		CompanyID:      uuid.New(),
		PipelineStatus: model.PipelineQueued,
		LockVersion:    3,
	}
	// registration races the dial, so publish until the first frame arrives
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			hub.PublishDocument(want)
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Expected an event frame, got %v", err)
	}
	first := strings.SplitN(string(data), "\n", 2)[0]
	var got service.DocumentEvent
	if err := json.Unmarshal([]byte(first), &got); err != nil {
		t.Fatalf("Expected JSON event, got %q", first)
	}
	if got.Type != "document.updated" || got.DocumentID != want.DocumentID || got.LockVersion != 3 {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestServeWsRequiresPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil)
	router := gin.New()
	router.GET("/ws", hub.ServeWs)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}
