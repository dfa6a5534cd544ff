package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/placement/pkg/placement/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func TestChatCounters(t *testing.T) {
	m := New(nil)

	m.MessageSent("text")
	m.MessageSent("text")
	m.MessageSent("file")
	m.ReactionToggled(true)
	m.ReactionToggled(false)
	m.LoginLimited()
	m.AttachmentsPurged(3)

	if got := testutil.ToFloat64(m.messagesSent.WithLabelValues("text")); got != 2 {
		t.Errorf("Expected 2 text messages, got %v", got)
	}
	if got := testutil.ToFloat64(m.reactions.WithLabelValues("removed")); got != 1 {
		t.Errorf("Expected 1 removed reaction, got %v", got)
	}
	if got := testutil.ToFloat64(m.loginsLimited); got != 1 {
		t.Errorf("Expected 1 limited login, got %v", got)
	}
	if got := testutil.ToFloat64(m.attachmentsPurged); got != 3 {
		t.Errorf("Expected 3 purged attachments, got %v", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	db.Create(&models.User{Email: "a@campus.edu", Name: "A"})
	db.Create(&models.User{Email: "b@campus.edu", Name: "B"})

	m := New(db)
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/chat/groups/:id/messages", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", m.Handler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/api/chat/groups/7/messages", nil))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/nowhere", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues("/api/chat/groups/:id/messages", "GET", "200")); got != 2 {
		t.Errorf("Expected 2 requests on the templated route, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("unmatched", "GET", "404")); got != 1 {
		t.Errorf("Expected 1 unmatched request, got %v", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "placement_users 2") {
		t.Errorf("Expected users gauge of 2 in output")
	}
	if !strings.Contains(body, "go_sql_open_connections") {
		t.Errorf("Expected database pool metrics in output")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Errorf("Expected Go runtime metrics in output")
	}
}
