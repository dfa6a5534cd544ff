package messages

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/placement/pkg/placement/auth"
	"github.com/mikepea/placement/pkg/placement/files"
	"github.com/mikepea/placement/pkg/placement/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type countingRecorder struct {
	sent    map[string]int
	added   int
	removed int
}

func (r *countingRecorder) MessageSent(kind string) { r.sent[kind]++ }

func (r *countingRecorder) ReactionToggled(added bool) {
	if added {
		r.added++
	} else {
		r.removed++
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string, role models.SystemRole) models.User {
	user := models.User{
		Email:        email,
		PasswordHash: "hash",
		Name:         "User " + email,
		SystemRole:   role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func createTestGroup(t *testing.T, db *gorm.DB, name string, members ...models.User) models.Group {
	group := models.Group{Name: name, Department: "CSE"}
	if err := db.Create(&group).Error; err != nil {
		t.Fatalf("Failed to create test group: %v", err)
	}
	for _, u := range members {
		db.Create(&models.GroupMembership{UserID: u.ID, GroupID: group.ID, Role: models.GroupRoleMember})
	}
	return group
}

func createTestMessage(t *testing.T, db *gorm.DB, group models.Group, sender models.User, content string) models.Message {
	msg := models.Message{GroupID: group.ID, SenderID: sender.ID, Content: content}
	if err := db.Create(&msg).Error; err != nil {
		t.Fatalf("Failed to create test message: %v", err)
	}
	return msg
}

func setupTestRouter(t *testing.T, db *gorm.DB) (*gin.Engine, *Handler, *countingRecorder) {
	gin.SetMode(gin.TestMode)
	store, err := files.NewStore(t.TempDir(), 1024)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	rec := &countingRecorder{sent: map[string]int{}}
	h := NewHandler(db, store, rec)

	r := gin.New()
	rg := r.Group("/chat")
	rg.Use(auth.AuthMiddleware())
	h.RegisterRoutes(rg)
	return r, h, rec
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.Email, string(user.SystemRole))
	return "Bearer " + token
}

func doJSON(router *gin.Engine, method, path string, user models.User, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestSendMessage(t *testing.T) {
	db := setupTestDB(t)
	router, _, rec := setupTestRouter(t, db)
	alice := createTestUser(t, db, "alice@campus.edu", models.SystemRoleStudent)
	group := createTestGroup(t, db, "Acme", alice)

	resp := doJSON(router, "POST", fmt.Sprintf("/chat/groups/%d/messages", group.ID), alice,
		SendMessageRequest{Content: "  <b>hello</b> team  "})

	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var msg MessageResponse
	json.Unmarshal(resp.Body.Bytes(), &msg)
	if msg.Content != "hello team" {
		t.Errorf("Expected sanitised content 'hello team', got %q", msg.Content)
	}
	if msg.Sender.ID != alice.ID {
		t.Errorf("Expected sender %d, got %d", alice.ID, msg.Sender.ID)
	}
	if msg.Reactions == nil {
		t.Error("Expected reactions to be an empty list, not null")
	}
	if rec.sent["text"] != 1 {
		t.Errorf("Expected one text message recorded, got %d", rec.sent["text"])
	}
}

func TestSendMessageValidation(t *testing.T) {
	db := setupTestDB(t)
	router, _, _ := setupTestRouter(t, db)
	alice := createTestUser(t, db, "alice@campus.edu", models.SystemRoleStudent)
	outsider := createTestUser(t, db, "eve@campus.edu", models.SystemRoleStudent)
	group := createTestGroup(t, db, "Acme", alice)
	other := createTestGroup(t, db, "Other", alice)
	foreign := createTestMessage(t, db, other, alice, "elsewhere")

	tests := []struct {
		name   string
		user   models.User
		body   SendMessageRequest
		status int
	}{
		{"empty content", alice, SendMessageRequest{Content: "   "}, http.StatusBadRequest},
		{"markup only", alice, SendMessageRequest{Content: "<script></script>"}, http.StatusBadRequest},
		{"too long", alice, SendMessageRequest{Content: string(bytes.Repeat([]byte("a"), MaxContentLength+1))}, http.StatusBadRequest},
		{"reply in other group", alice, SendMessageRequest{Content: "hi", ReplyToID: &foreign.ID}, http.StatusBadRequest},
		{"not a member", outsider, SendMessageRequest{Content: "hi"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(router, "POST", fmt.Sprintf("/chat/groups/%d/messages", group.ID), tt.user, tt.body)
			if resp.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestSendReply(t *testing.T) {
	db := setupTestDB(t)
	router, _, _ := setupTestRouter(t, db)
	alice := createTestUser(t, db, "alice@campus.edu", models.SystemRoleStudent)
	bob := createTestUser(t, db, "bob@campus.edu", models.SystemRoleStudent)
	group := createTestGroup(t, db, "Acme", alice, bob)
	original := createTestMessage(t, db, group, alice, "when is the test?")

	resp := doJSON(router, "POST", fmt.Sprintf("/chat/groups/%d/messages", group.ID), bob,
		SendMessageRequest{Content: "Friday", ReplyToID: &original.ID})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var msg MessageResponse
	json.Unmarshal(resp.Body.Bytes(), &msg)
	if msg.ReplyTo == nil {
		t.Fatal("Expected reply preview")
	}
	if msg.ReplyTo.Content != "when is the test?" || msg.ReplyTo.Sender.ID != alice.ID {
		t.Errorf("Unexpected reply preview: %+v", msg.ReplyTo)
	}
}

func TestListMessagesPaginationAndPinned(t *testing.T) {
	db := setupTestDB(t)
	router, _, _ := setupTestRouter(t, db)
	alice := createTestUser(t, db, "alice@campus.edu", models.SystemRoleStudent)
	group := createTestGroup(t, db, "Acme", alice)

	var ids []uint
	for i := 0; i < 5; i++ {
		ids = append(ids, createTestMessage(t, db, group, alice, fmt.Sprintf("m%d", i)).ID)
	}
	db.Model(&models.Message{}).Where("id = ?", ids[1]).Updates(map[string]interface{}{"is_pinned": true, "pinned_at": time.Now()})

	resp := doJSON(router, "GET", fmt.Sprintf("/chat/groups/%d/messages?limit=3", group.ID), alice, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var page ListResponse
	json.Unmarshal(resp.Body.Bytes(), &page)
	if len(page.Messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(page.Messages))
	}
	if page.Messages[0].Content != "m2" || page.Messages[2].Content != "m4" {
		t.Errorf("Expected newest page oldest first (m2..m4), got %s..%s", page.Messages[0].Content, page.Messages[2].Content)
	}
	if !page.HasMore || page.NextCursor == nil || *page.NextCursor != ids[2] {
		t.Errorf("Expected has_more with cursor %d, got %v %v", ids[2], page.HasMore, page.NextCursor)
	}
	if len(page.Pinned) != 1 || page.Pinned[0].ID != ids[1] {
		t.Errorf("Expected pinned message %d, got %+v", ids[1], page.Pinned)
	}

	resp = doJSON(router, "GET", fmt.Sprintf("/chat/groups/%d/messages?limit=3&before=%d", group.ID, *page.NextCursor), alice, nil)
	var older ListResponse
	json.Unmarshal(resp.Body.Bytes(), &older)
	if len(older.Messages) != 2 || older.HasMore {
		t.Errorf("Expected final page of 2 messages, got %d (has_more=%v)", len(older.Messages), older.HasMore)
	}

	var membership models.GroupMembership
	db.Where("user_id = ? AND group_id = ?", alice.ID, group.ID).First(&membership)
	if membership.LastReadAt == nil {
		t.Error("Expected listing the newest page to mark the group read")
	}
}

func TestListMessagesRequiresMembership(t *testing.T) {
	db := setupTestDB(t)
	router, _, _ := setupTestRouter(t, db)
	alice := createTestUser(t, db, "alice@campus.edu", models.SystemRoleStudent)
	eve := createTestUser(t, db, "eve@campus.edu", models.SystemRoleStudent)
	group := createTestGroup(t, db, "Acme", alice)

	resp := doJSON(router, "GET", fmt.Sprintf("/chat/groups/%d/messages", group.ID), eve, nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}

func TestSearchMessages(t *testing.T) {
	db := setupTestDB(t)
	router, _, _ := setupTestRouter(t, db)
	alice := createTestUser(t, db, "alice@campus.edu", models.SystemRoleStudent)
	group := createTestGroup(t, db, "Acme", alice)
	createTestMessage(t, db, group, alice, "Aptitude round on Monday")
	createTestMessage(t, db, group, alice, "Interview at 100% capacity")
	gone := createTestMessage(t, db, group, alice, "aptitude answers leaked")
	db.Model(&gone).Update("is_deleted", true)

	resp := doJSON(router, "GET", fmt.Sprintf("/chat/groups/%d/messages/search?q=a", group.ID), alice, nil)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for a 1 character query, got %d", resp.Code)
	}

	resp = doJSON(router, "GET", fmt.Sprintf("/chat/groups/%d/messages/search?q=apti", group.ID), alice, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var result SearchResponse
	json.Unmarshal(resp.Body.Bytes(), &result)
	if len(result.Messages) != 1 {
		t.Errorf("Expected 1 hit excluding deleted messages, got %d", len(result.Messages))
	}

	resp = doJSON(router, "GET", fmt.Sprintf("/chat/groups/%d/messages/search?q=0%%25", group.ID), alice, nil)
	json.Unmarshal(resp.Body.Bytes(), &result)
	if len(result.Messages) != 1 || result.Messages[0].Content != "Interview at 100% capacity" {
		t.Errorf("Expected literal %% match, got %+v", result.Messages)
	}
}

func TestSendFile(t *testing.T) {
	db := setupTestDB(t)
	router, _, rec := setupTestRouter(t, db)
	alice := createTestUser(t, db, "alice@campus.edu", models.SystemRoleStudent)
	group := createTestGroup(t, db, "Acme", alice)

	upload := func(data []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, _ := w.CreateFormFile("file", "resume.pdf")
		part.Write(data)
		w.WriteField("content", "my resume")
		w.Close()

		req, _ := http.NewRequest("POST", fmt.Sprintf("/chat/groups/%d/messages/file", group.ID), &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", getAuthHeader(alice))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp
	}

	resp := upload([]byte("%PDF-1.4 small"))
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var msg MessageResponse
	json.Unmarshal(resp.Body.Bytes(), &msg)
	if msg.FileName != "resume.pdf" || msg.Content != "my resume" {
		t.Errorf("Unexpected file message: %+v", msg)
	}
	if msg.FileType != "application/pdf" {
		t.Errorf("Expected application/pdf, got %s", msg.FileType)
	}
	if rec.sent["file"] != 1 {
		t.Errorf("Expected one file message recorded, got %d", rec.sent["file"])
	}

	resp = upload(bytes.Repeat([]byte("x"), 2048))
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", resp.Code)
	}
}

func TestEditMessage(t *testing.T) {
	db := setupTestDB(t)
	router, h, _ := setupTestRouter(t, db)
	alice := createTestUser(t, db, "alice@campus.edu", models.SystemRoleStudent)
	bob := createTestUser(t, db, "bob@campus.edu", models.SystemRoleStudent)
	group := createTestGroup(t, db, "Acme", alice, bob)
	msg := createTestMessage(t, db, group, alice, "helo")
	path := fmt.Sprintf("/chat/messages/%d", msg.ID)

	resp := doJSON(router, "PUT", path, bob, EditMessageRequest{Content: "hijack"})
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for another user's message, got %d", resp.Code)
	}

	h.now = func() time.Time { return msg.CreatedAt.Add(14*time.Minute + 59*time.Second) }
	resp = doJSON(router, "PUT", path, alice, EditMessageRequest{Content: "hello"})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var edited MessageResponse
	json.Unmarshal(resp.Body.Bytes(), &edited)
	if edited.Content != "hello" || !edited.IsEdited {
		t.Errorf("Expected edited content, got %+v", edited)
	}

	h.now = func() time.Time { return msg.CreatedAt.Add(15*time.Minute + time.Second) }
	resp = doJSON(router, "PUT", path, alice, EditMessageRequest{Content: "late"})
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 after the edit window, got %d", resp.Code)
	}
}

func TestDeleteMessage(t *testing.T) {
	db := setupTestDB(t)
	router, _, _ := setupTestRouter(t, db)
	alice := createTestUser(t, db, "alice@campus.edu", models.SystemRoleStudent)
	bob := createTestUser(t, db, "bob@campus.edu", models.SystemRoleStudent)
	tpo := createTestUser(t, db, "tpo@campus.edu", models.SystemRoleTPO)
	group := createTestGroup(t, db, "Acme", alice, bob, tpo)
	mine := createTestMessage(t, db, group, alice, "mine")
	pinned := createTestMessage(t, db, group, alice, "pinned")
	db.Model(&pinned).Update("is_pinned", true)

	resp := doJSON(router, "DELETE", fmt.Sprintf("/chat/messages/%d", mine.ID), bob, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for a student deleting another's message, got %d", resp.Code)
	}

	resp = doJSON(router, "DELETE", fmt.Sprintf("/chat/messages/%d", mine.ID), alice, nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(router, "DELETE", fmt.Sprintf("/chat/messages/%d", pinned.ID), tpo, nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected staff delete to succeed, got %d: %s", resp.Code, resp.Body.String())
	}

	var stored models.Message
	db.First(&stored, pinned.ID)
	if !stored.IsDeleted || stored.Content != "" || stored.IsPinned || stored.RemovedAt == nil {
		t.Errorf("Expected soft-deleted, unpinned message, got %+v", stored)
	}

	resp = doJSON(router, "PUT", fmt.Sprintf("/chat/messages/%d", mine.ID), alice, EditMessageRequest{Content: "again"})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 editing a deleted message, got %d", resp.Code)
	}
}

func TestToggleReaction(t *testing.T) {
	db := setupTestDB(t)
	router, _, rec := setupTestRouter(t, db)
	alice := createTestUser(t, db, "alice@campus.edu", models.SystemRoleStudent)
	bob := createTestUser(t, db, "bob@campus.edu", models.SystemRoleStudent)
	group := createTestGroup(t, db, "Acme", alice, bob)
	msg := createTestMessage(t, db, group, alice, "offer letter!")
	path := fmt.Sprintf("/chat/messages/%d/reactions", msg.ID)

	doJSON(router, "POST", path, alice, ReactionRequest{Emoji: "👍"})
	resp := doJSON(router, "POST", path, bob, ReactionRequest{Emoji: "👍"})
	var result map[string]interface{}
	json.Unmarshal(resp.Body.Bytes(), &result)
	if result["reacted"] != true {
		t.Errorf("Expected reaction to be added, got %v", result)
	}

	resp = doJSON(router, "GET", fmt.Sprintf("/chat/groups/%d/messages", group.ID), bob, nil)
	var page ListResponse
	json.Unmarshal(resp.Body.Bytes(), &page)
	reactions := page.Messages[0].Reactions
	if len(reactions) != 1 || len(reactions[0].Users) != 2 {
		t.Fatalf("Expected one 👍 chip with two users, got %+v", reactions)
	}

	resp = doJSON(router, "POST", path, bob, ReactionRequest{Emoji: "👍"})
	json.Unmarshal(resp.Body.Bytes(), &result)
	if result["reacted"] != false {
		t.Errorf("Expected second toggle to remove the reaction, got %v", result)
	}

	var count int64
	db.Model(&models.MessageReaction{}).Where("message_id = ?", msg.ID).Count(&count)
	if count != 1 {
		t.Errorf("Expected 1 reaction left, got %d", count)
	}
	if rec.added != 2 || rec.removed != 1 {
		t.Errorf("Expected 2 added and 1 removed, got %d and %d", rec.added, rec.removed)
	}
}

func TestTogglePin(t *testing.T) {
	db := setupTestDB(t)
	router, _, _ := setupTestRouter(t, db)
	alice := createTestUser(t, db, "alice@campus.edu", models.SystemRoleStudent)
	tpo := createTestUser(t, db, "tpo@campus.edu", models.SystemRoleTPO)
	group := createTestGroup(t, db, "Acme", alice, tpo)
	msg := createTestMessage(t, db, group, tpo, "Reporting time 9am")
	path := fmt.Sprintf("/chat/messages/%d/pin", msg.ID)

	resp := doJSON(router, "POST", path, alice, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for a student, got %d", resp.Code)
	}

	resp = doJSON(router, "POST", path, tpo, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var stored models.Message
	db.First(&stored, msg.ID)
	if !stored.IsPinned || stored.PinnedByID == nil || *stored.PinnedByID != tpo.ID {
		t.Errorf("Expected message pinned by TPO, got %+v", stored)
	}

	doJSON(router, "POST", path, tpo, nil)
	db.First(&stored, msg.ID)
	if stored.IsPinned {
		t.Error("Expected second toggle to unpin")
	}
}

func TestSanitizeContent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"  padded  ", "padded"},
		{"<b>bold</b>", "bold"},
		{"<script>alert(1)</script>hi", "hi"},
		{"5 < 6 & 7 > 3", "5 < 6 & 7 > 3"},
	}

	for _, tt := range tests {
		if got := SanitizeContent(tt.in); got != tt.want {
			t.Errorf("SanitizeContent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
