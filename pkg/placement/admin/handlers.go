package admin

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/mikepea/placement/pkg/placement/auth"
	"github.com/mikepea/placement/pkg/placement/models"
	"gorm.io/gorm"
)

// Handler handles admin requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID           uint   `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	StudentID    string `json:"student_id,omitempty"`
	Department   string `json:"department,omitempty"`
	SystemRole   string `json:"system_role"`
	Active       bool   `json:"active"`
	CreatedAt    string `json:"created_at"`
	MessageCount int64  `json:"message_count"`
	GroupCount   int64  `json:"group_count"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Name       *string `json:"name"`
	StudentID  *string `json:"student_id"`
	Department *string `json:"department"`
	SystemRole *string `json:"system_role"`
	Active     *bool   `json:"active"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers      int64  `json:"total_users"`
	Students        int64  `json:"students"`
	TPOStaff        int64  `json:"tpo_staff"`
	AdminUsers      int64  `json:"admin_users"`
	DisabledUsers   int64  `json:"disabled_users"`
	TotalDrives     int64  `json:"total_drives"`
	OpenDrives      int64  `json:"open_drives"`
	TotalGroups     int64  `json:"total_groups"`
	TotalMessages   int64  `json:"total_messages"`
	DeletedMessages int64  `json:"deleted_messages"`
	PinnedMessages  int64  `json:"pinned_messages"`
	TotalReactions  int64  `json:"total_reactions"`
	Attachments     int64  `json:"attachments"`
	AttachmentBytes int64  `json:"attachment_bytes"`
	AttachmentSize  string `json:"attachment_size"` // e.g. "12 MB"
	TotalDownloads  int64  `json:"total_downloads"`
	ActiveAPIKeys   int64  `json:"active_api_keys"`
}

func (h *Handler) newUserResponse(user models.User) UserResponse {
	var messageCount, groupCount int64
	h.db.Model(&models.Message{}).Where("sender_id = ?", user.ID).Count(&messageCount)
	h.db.Model(&models.GroupMembership{}).Where("user_id = ?", user.ID).Count(&groupCount)

	return UserResponse{
		ID:           user.ID,
		Email:        user.Email,
		Name:         user.Name,
		StudentID:    user.StudentID,
		Department:   user.Department,
		SystemRole:   string(user.SystemRole),
		Active:       user.Active,
		CreatedAt:    user.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		MessageCount: messageCount,
		GroupCount:   groupCount,
	}
}

// ListUsers returns all users (admin only)
func (h *Handler) ListUsers(c *gin.Context) {
	var users []models.User

	query := h.db.Order("created_at DESC")

	// Optional search by email, name or student ID
	if search := c.Query("q"); search != "" {
		like := "%" + search + "%"
		query = query.Where("email LIKE ? OR name LIKE ? OR student_id LIKE ?", like, like, like)
	}

	// Optional filters
	if role := c.Query("role"); role != "" {
		query = query.Where("system_role = ?", role)
	}
	if dept := c.Query("department"); dept != "" {
		query = query.Where("department = ?", strings.ToUpper(dept))
	}

	if err := query.Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]UserResponse, len(users))
	for i, user := range users {
		responses[i] = h.newUserResponse(user)
	}

	c.JSON(http.StatusOK, responses)
}

// GetUser returns a single user by ID (admin only)
func (h *Handler) GetUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, h.newUserResponse(user))
}

// UpdateUser updates a user's profile, role or status (admin only)
func (h *Handler) UpdateUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Prevent admin from locking themselves out
	currentUserID, _ := auth.GetUserID(c)
	if uint(id) == currentUserID {
		if req.SystemRole != nil && *req.SystemRole != string(models.SystemRoleAdmin) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
			return
		}
		if req.Active != nil && !*req.Active {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot disable yourself"})
			return
		}
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.StudentID != nil {
		updates["student_id"] = strings.TrimSpace(*req.StudentID)
	}
	if req.Department != nil {
		updates["department"] = strings.ToUpper(strings.TrimSpace(*req.Department))
	}
	if req.SystemRole != nil {
		if !models.SystemRole(*req.SystemRole).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid system role"})
			return
		}
		updates["system_role"] = *req.SystemRole
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if len(updates) > 0 {
		if err := h.db.Model(&user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
	}

	// Reload user
	h.db.First(&user, id)

	c.JSON(http.StatusOK, h.newUserResponse(user))
}

// DeleteUser soft-deletes a user (admin only). Their messages stay in the
// group history under the removed account.
func (h *Handler) DeleteUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	// Prevent admin from deleting themselves
	currentUserID, _ := auth.GetUserID(c)
	if uint(id) == currentUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	// Delete user and related data in a transaction
	err = h.db.Transaction(func(tx *gorm.DB) error {
		// Delete API keys
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.APIKey{}).Error; err != nil {
			return err
		}
		// Delete group memberships
		if err := tx.Unscoped().Where("user_id = ?", user.ID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		// Delete reactions
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.MessageReaction{}).Error; err != nil {
			return err
		}
		// Delete user
		return tx.Delete(&user).Error
	})

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// CollectStats gathers system-wide counters
func CollectStats(db *gorm.DB) StatsResponse {
	var stats StatsResponse

	db.Model(&models.User{}).Count(&stats.TotalUsers)
	db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleStudent).Count(&stats.Students)
	db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleTPO).Count(&stats.TPOStaff)
	db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&stats.AdminUsers)
	db.Model(&models.User{}).Where("active = ?", false).Count(&stats.DisabledUsers)

	db.Model(&models.Drive{}).Count(&stats.TotalDrives)
	db.Model(&models.Drive{}).Where("status = ?", models.DriveStatusOpen).Count(&stats.OpenDrives)
	db.Model(&models.Group{}).Count(&stats.TotalGroups)

	db.Model(&models.Message{}).Count(&stats.TotalMessages)
	db.Model(&models.Message{}).Where("is_deleted = ?", true).Count(&stats.DeletedMessages)
	db.Model(&models.Message{}).Where("is_pinned = ?", true).Count(&stats.PinnedMessages)
	db.Model(&models.MessageReaction{}).Count(&stats.TotalReactions)
	db.Model(&models.APIKey{}).Count(&stats.ActiveAPIKeys)

	attachments := db.Model(&models.Message{}).Where("stored_name <> ''")
	attachments.Count(&stats.Attachments)
	db.Model(&models.Message{}).Where("stored_name <> ''").Select("COALESCE(SUM(file_size), 0)").Scan(&stats.AttachmentBytes)
	db.Model(&models.Message{}).Select("COALESCE(SUM(download_count), 0)").Scan(&stats.TotalDownloads)
	stats.AttachmentSize = humanize.Bytes(uint64(stats.AttachmentBytes))

	return stats
}

// GetStats returns system-wide statistics (admin only)
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, CollectStats(h.db))
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.GET("/users/:id", h.GetUser)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.DELETE("/users/:id", h.DeleteUser)
}
