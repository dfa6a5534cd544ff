package groups

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/placement/pkg/placement/auth"
	"github.com/mikepea/placement/pkg/placement/models"
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

func createTestUser(t *testing.T, db *gorm.DB, email string, role models.SystemRole, dept string) models.User {
	user := models.User{
		Email:        email,
		PasswordHash: "hash",
		Name:         "User " + email,
		Department:   dept,
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
	for i, u := range members {
		role := models.GroupRoleMember
		if i == 0 {
			role = models.GroupRoleModerator
		}
		db.Create(&models.GroupMembership{UserID: u.ID, GroupID: group.ID, Role: role})
	}
	return group
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chat := r.Group("/chat")
	chat.Use(auth.AuthMiddleware())
	NewHandler(db).RegisterRoutes(chat)
	return r
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

func TestListGroupsSummaries(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	alice := createTestUser(t, db, "alice@campus.edu", models.SystemRoleStudent, "CSE")
	bob := createTestUser(t, db, "bob@campus.edu", models.SystemRoleStudent, "CSE")

	deadline := time.Now().Add(48 * time.Hour)
	drive := models.Drive{Company: "Acme", Position: "SDE", Status: models.DriveStatusOpen, Deadline: &deadline}
	db.Create(&drive)

	quiet := createTestGroup(t, db, "Quiet", alice, bob)
	busy := createTestGroup(t, db, "Busy", alice, bob)
	db.Model(&busy).Update("drive_id", drive.ID)

	db.Create(&models.Message{GroupID: quiet.ID, SenderID: bob.ID, Content: "old news"})
	db.Create(&models.Message{GroupID: busy.ID, SenderID: alice.ID, Content: "mine"})
	db.Create(&models.Message{GroupID: busy.ID, SenderID: bob.ID, Content: "first"})
	db.Create(&models.Message{GroupID: busy.ID, SenderID: bob.ID, Content: "second"})
	db.Create(&models.Message{GroupID: busy.ID, SenderID: bob.ID, Content: "gone", IsDeleted: true})

	resp := doJSON(router, "GET", "/chat/groups", alice, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var groups []GroupSummary
	json.Unmarshal(resp.Body.Bytes(), &groups)
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}

	first := groups[0]
	if first.ID != busy.ID {
		t.Errorf("Expected most recently active group first, got %s", first.Name)
	}
	if first.UnreadCount != 2 {
		t.Errorf("Expected 2 unread messages from others, got %d", first.UnreadCount)
	}
	if first.LastMessage == nil || first.LastMessage.Content != "second" {
		t.Errorf("Expected last visible message 'second', got %+v", first.LastMessage)
	}
	if first.Drive == nil || first.Drive.Company != "Acme" {
		t.Errorf("Expected drive summary, got %+v", first.Drive)
	}
	if first.MemberCount != 2 || first.Role != string(models.GroupRoleModerator) {
		t.Errorf("Unexpected member count or role: %d %s", first.MemberCount, first.Role)
	}

	now := time.Now()
	db.Model(&models.GroupMembership{}).Where("user_id = ? AND group_id = ?", alice.ID, busy.ID).Update("last_read_at", now)

	resp = doJSON(router, "GET", "/chat/groups", alice, nil)
	json.Unmarshal(resp.Body.Bytes(), &groups)
	for _, g := range groups {
		if g.ID == busy.ID && g.UnreadCount != 0 {
			t.Errorf("Expected no unread messages after reading, got %d", g.UnreadCount)
		}
	}
}

func TestListGroupsOnlyMine(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	alice := createTestUser(t, db, "alice@campus.edu", models.SystemRoleStudent, "CSE")
	eve := createTestUser(t, db, "eve@campus.edu", models.SystemRoleStudent, "ECE")
	createTestGroup(t, db, "Acme", alice)

	resp := doJSON(router, "GET", "/chat/groups", eve, nil)
	var groups []GroupSummary
	json.Unmarshal(resp.Body.Bytes(), &groups)
	if len(groups) != 0 {
		t.Errorf("Expected no groups for a non-member, got %d", len(groups))
	}
}

func TestCreateGroup(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	tpo := createTestUser(t, db, "tpo@campus.edu", models.SystemRoleTPO, "")
	student := createTestUser(t, db, "s1@campus.edu", models.SystemRoleStudent, "ECE")
	createTestUser(t, db, "s2@campus.edu", models.SystemRoleStudent, "ECE")

	body := CreateGroupRequest{Name: "ECE batch", Department: "ece", AddDepartment: true}

	resp := doJSON(router, "POST", "/chat/groups", student, body)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for a student, got %d", resp.Code)
	}

	resp = doJSON(router, "POST", "/chat/groups", tpo, body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var group GroupSummary
	json.Unmarshal(resp.Body.Bytes(), &group)
	if group.MemberCount != 3 {
		t.Errorf("Expected creator plus 2 students, got %d", group.MemberCount)
	}
	if group.Department != "ECE" || group.Role != string(models.GroupRoleModerator) {
		t.Errorf("Unexpected group: %+v", group)
	}
}

func TestGroupInfo(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	tpo := createTestUser(t, db, "tpo@campus.edu", models.SystemRoleTPO, "")
	alice := createTestUser(t, db, "alice@campus.edu", models.SystemRoleStudent, "CSE")
	eve := createTestUser(t, db, "eve@campus.edu", models.SystemRoleStudent, "CSE")
	group := createTestGroup(t, db, "Acme", tpo, alice)

	db.Create(&models.Message{GroupID: group.ID, SenderID: alice.ID, Content: "cv", FileURL: "/files/a.pdf", FileName: "cv.pdf", FileType: "application/pdf", FileSize: 2048})
	db.Create(&models.Message{GroupID: group.ID, SenderID: alice.ID, FileURL: "/files/b.pdf", FileName: "old.pdf", IsDeleted: true})
	db.Create(&models.Message{GroupID: group.ID, SenderID: alice.ID, Content: "plain"})

	resp := doJSON(router, "GET", fmt.Sprintf("/chat/groups/%d/info", group.ID), eve, nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for a non-member, got %d", resp.Code)
	}

	resp = doJSON(router, "GET", fmt.Sprintf("/chat/groups/%d/info", group.ID), alice, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var info InfoResponse
	json.Unmarshal(resp.Body.Bytes(), &info)
	if len(info.Members) != 2 {
		t.Errorf("Expected 2 members, got %d", len(info.Members))
	}
	if info.Members[0].GroupRole != string(models.GroupRoleModerator) || info.Members[0].Role != string(models.SystemRoleTPO) {
		t.Errorf("Unexpected first member: %+v", info.Members[0])
	}
	if len(info.Files) != 1 || info.Files[0].Name != "cv.pdf" || info.Files[0].Sender.ID != alice.ID {
		t.Errorf("Expected only the live attachment, got %+v", info.Files)
	}
}

func TestAddAndRemoveMember(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	tpo := createTestUser(t, db, "tpo@campus.edu", models.SystemRoleTPO, "")
	bob := createTestUser(t, db, "bob@campus.edu", models.SystemRoleStudent, "CSE")
	group := createTestGroup(t, db, "Acme", tpo)
	path := fmt.Sprintf("/chat/groups/%d/members", group.ID)

	resp := doJSON(router, "POST", path, tpo, AddMemberRequest{Email: "BOB@campus.edu"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(router, "POST", path, tpo, AddMemberRequest{Email: "bob@campus.edu"})
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for duplicate member, got %d", resp.Code)
	}

	resp = doJSON(router, "POST", path, tpo, AddMemberRequest{})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 with neither email nor department, got %d", resp.Code)
	}

	resp = doJSON(router, "DELETE", fmt.Sprintf("%s/%d", path, bob.ID), bob, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for a student, got %d", resp.Code)
	}

	resp = doJSON(router, "DELETE", fmt.Sprintf("%s/%d", path, bob.ID), tpo, nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(router, "DELETE", fmt.Sprintf("%s/%d", path, tpo.ID), tpo, nil)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 removing the last moderator, got %d", resp.Code)
	}

	resp = doJSON(router, "POST", path, tpo, AddMemberRequest{Email: "bob@campus.edu"})
	if resp.Code != http.StatusCreated {
		t.Errorf("Expected a removed member to be re-addable, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAddDepartmentMembers(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	tpo := createTestUser(t, db, "tpo@campus.edu", models.SystemRoleTPO, "")
	s1 := createTestUser(t, db, "s1@campus.edu", models.SystemRoleStudent, "MECH")
	createTestUser(t, db, "s2@campus.edu", models.SystemRoleStudent, "MECH")
	inactive := createTestUser(t, db, "s3@campus.edu", models.SystemRoleStudent, "MECH")
	db.Model(&inactive).Update("active", false)
	group := createTestGroup(t, db, "Mech", tpo, s1)

	resp := doJSON(router, "POST", fmt.Sprintf("/chat/groups/%d/members", group.ID), tpo, AddMemberRequest{Department: "mech"})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var result map[string]int
	json.Unmarshal(resp.Body.Bytes(), &result)
	if result["added"] != 1 {
		t.Errorf("Expected only the missing active student added, got %d", result["added"])
	}
}
