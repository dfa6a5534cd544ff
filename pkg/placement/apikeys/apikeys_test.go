package apikeys

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

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

func createTestUser(t *testing.T, db *gorm.DB, email string) models.User {
	hash, _ := auth.HashPassword("password123")
	user := models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Test Student",
		SystemRole:   models.SystemRoleStudent,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(db)

	api := r.Group("/api")
	api.Use(auth.AuthMiddleware())
	handler.RegisterRoutes(api)

	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.Email, string(user.SystemRole))
	return "Bearer " + token
}

func TestCreateAPIKey(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@campus.edu")

	jsonBody, _ := json.Marshal(CreateAPIKeyRequest{Description: "terminal client"})

	req, _ := http.NewRequest("POST", "/api/api-keys", bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var response CreateAPIKeyResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if !strings.HasPrefix(response.Key, KeyMarker) {
		t.Errorf("Expected key to start with %s, got %s", KeyMarker, response.Key)
	}
	if len(response.Key) != len(KeyMarker)+KeyLength*2 {
		t.Errorf("Expected key length %d, got %d", len(KeyMarker)+KeyLength*2, len(response.Key))
	}
	if response.KeyPrefix != response.Key[:KeyPrefixLength] {
		t.Error("Key prefix should match the start of the key")
	}
	if response.Description != "terminal client" {
		t.Errorf("Expected description 'terminal client', got '%s'", response.Description)
	}
}

func TestCreateAPIKeyWithoutDescription(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@campus.edu")

	req, _ := http.NewRequest("POST", "/api/api-keys", nil)
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestListAPIKeysOnlyShowsOwnKeys(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user1 := createTestUser(t, db, "user1@campus.edu")
	user2 := createTestUser(t, db, "user2@campus.edu")

	db.Create(&models.APIKey{UserID: user1.ID, KeyHash: "hash1", KeyPrefix: "plc_key1abcd"})
	db.Create(&models.APIKey{UserID: user1.ID, KeyHash: "hash2", KeyPrefix: "plc_key2abcd"})
	db.Create(&models.APIKey{UserID: user2.ID, KeyHash: "hash3", KeyPrefix: "plc_key3efgh"})

	req, _ := http.NewRequest("GET", "/api/api-keys", nil)
	req.Header.Set("Authorization", getAuthHeader(user1))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var response []APIKeyResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if len(response) != 2 {
		t.Fatalf("Expected 2 API keys, got %d", len(response))
	}
	for _, k := range response {
		if k.KeyPrefix == "plc_key3efgh" {
			t.Error("Should only see own API keys")
		}
	}
}

func TestDeleteAPIKey(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@campus.edu")

	apiKey := models.APIKey{UserID: user.ID, KeyHash: "hash1", KeyPrefix: "plc_key1abcd"}
	db.Create(&apiKey)

	req, _ := http.NewRequest("DELETE", "/api/api-keys/1", nil)
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var count int64
	db.Model(&models.APIKey{}).Where("id = ?", apiKey.ID).Count(&count)
	if count != 0 {
		t.Error("API key should be deleted")
	}
}

func TestDeleteAPIKeyNotOwned(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user1 := createTestUser(t, db, "user1@campus.edu")
	user2 := createTestUser(t, db, "user2@campus.edu")

	db.Create(&models.APIKey{UserID: user2.ID, KeyHash: "hash1", KeyPrefix: "plc_key1abcd"})

	req, _ := http.NewRequest("DELETE", "/api/api-keys/1", nil)
	req.Header.Set("Authorization", getAuthHeader(user1))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}

func TestCombinedAuthMiddleware(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "tpo@campus.edu")
	db.Model(&user).Update("system_role", models.SystemRoleTPO)

	key := KeyMarker + "abcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890"
	apiKey := models.APIKey{
		UserID:    user.ID,
		KeyHash:   hashAPIKey(key),
		KeyPrefix: key[:KeyPrefixLength],
	}
	db.Create(&apiKey)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CombinedAuthMiddleware(db))
	r.GET("/test", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c)
		role, _ := auth.GetSystemRole(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "role": role})
	})

	tests := []struct {
		name  string
		token string
	}{
		{"api key", key},
		{"jwt", strings.TrimPrefix(getAuthHeader(models.User{ID: user.ID, Email: user.Email, SystemRole: models.SystemRoleTPO}), "Bearer ")},
	}

	for _, tt := range tests {
		req, _ := http.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer "+tt.token)
		resp := httptest.NewRecorder()

		r.ServeHTTP(resp, req)

		if resp.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d: %s", tt.name, resp.Code, resp.Body.String())
			continue
		}

		var response map[string]interface{}
		json.Unmarshal(resp.Body.Bytes(), &response)
		if uint(response["user_id"].(float64)) != user.ID {
			t.Errorf("%s: user ID should be set in context", tt.name)
		}
		if response["role"] != "tpo" {
			t.Errorf("%s: expected role tpo in context, got %v", tt.name, response["role"])
		}
	}

	var updated models.APIKey
	db.First(&updated, apiKey.ID)
	if updated.LastUsedAt == nil {
		t.Error("LastUsedAt should be set after the key is used")
	}
}

func TestCombinedAuthMiddlewareInvalidKey(t *testing.T) {
	db := setupTestDB(t)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CombinedAuthMiddleware(db))
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	for _, token := range []string{"invalidkey", KeyMarker + "0000"} {
		req, _ := http.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()

		r.ServeHTTP(resp, req)

		if resp.Code != http.StatusUnauthorized {
			t.Errorf("token %q: expected status 401, got %d", token, resp.Code)
		}
	}
}
