package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNewClamps(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		want        Params
	}{
		{"defaults", 0, 0, Params{Page: 1, Limit: 20, Offset: 0}},
		{"third page", 3, 10, Params{Page: 3, Limit: 10, Offset: 20}},
		{"limit capped", 1, 500, Params{Page: 1, Limit: 100, Offset: 0}},
		{"negative", -2, -5, Params{Page: 1, Limit: 20, Offset: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.page, tt.limit); got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParseFromQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/x?page=2&limit=5", nil)

	p := Parse(c)
	if p.Page != 2 || p.Limit != 5 || p.Offset != 5 {
		t.Errorf("Unexpected params %+v", p)
	}
}
