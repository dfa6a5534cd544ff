package groups

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/placement/pkg/placement/auth"
	"github.com/mikepea/placement/pkg/placement/drives"
	"github.com/mikepea/placement/pkg/placement/messages"
	"github.com/mikepea/placement/pkg/placement/models"
	"gorm.io/gorm"
)

// MemberResponse represents a group member in API responses
type MemberResponse struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	StudentID string    `json:"student_id,omitempty"`
	Role      string    `json:"role"`       // System role
	GroupRole string    `json:"group_role"` // Role within the group
	JoinedAt  time.Time `json:"joined_at"`
}

// SharedFile is an attachment posted in the group
type SharedFile struct {
	MessageID uint            `json:"message_id"`
	Name      string          `json:"name"`
	URL       string          `json:"url"`
	Type      string          `json:"type"`
	Size      int64           `json:"size"`
	Sender    messages.Sender `json:"sender"`
	CreatedAt time.Time       `json:"created_at"`
}

// InfoResponse is the group info panel payload
type InfoResponse struct {
	ID          uint             `json:"id"`
	Name        string           `json:"name"`
	Department  string           `json:"department"`
	Description string           `json:"description"`
	Drive       *drives.Summary  `json:"drive,omitempty"`
	Members     []MemberResponse `json:"members"`
	Files       []SharedFile     `json:"files"`
}

// AddMemberRequest adds one user by email, or every active student of a department
type AddMemberRequest struct {
	Email      string `json:"email" binding:"omitempty,email"`
	Department string `json:"department"`
	Role       string `json:"role" binding:"omitempty,oneof=moderator member"`
}

func newMemberResponse(m models.GroupMembership) MemberResponse {
	return MemberResponse{
		ID:        m.User.ID,
		Name:      m.User.Name,
		StudentID: m.User.StudentID,
		Role:      string(m.User.SystemRole),
		GroupRole: string(m.Role),
		JoinedAt:  m.CreatedAt,
	}
}

// Info returns the member roster, shared files and drive of a group
// @Summary Get group info
// @Tags chat
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} InfoResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /chat/groups/{id}/info [get]
func (h *Handler) Info(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	// Check membership
	if err := h.db.Where("user_id = ? AND group_id = ?", userID, groupID).First(&models.GroupMembership{}).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	var group models.Group
	if err := h.db.Preload("Drive").First(&group, groupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	var memberships []models.GroupMembership
	if err := h.db.Preload("User").Where("group_id = ?", groupID).Order("id").Find(&memberships).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
		return
	}

	var attachments []models.Message
	if err := h.db.Preload("Sender", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped() }).
		Where("group_id = ? AND is_deleted = ? AND file_url <> ''", groupID, false).
		Order("id DESC").Find(&attachments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch files"})
		return
	}

	resp := InfoResponse{
		ID:          group.ID,
		Name:        group.Name,
		Department:  group.Department,
		Description: group.Description,
		Drive:       drives.NewSummary(group.Drive),
		Members:     make([]MemberResponse, len(memberships)),
		Files:       make([]SharedFile, len(attachments)),
	}
	for i, m := range memberships {
		resp.Members[i] = newMemberResponse(m)
	}
	for i, m := range attachments {
		resp.Files[i] = SharedFile{
			MessageID: m.ID,
			Name:      m.FileName,
			URL:       m.FileURL,
			Type:      m.FileType,
			Size:      m.FileSize,
			Sender:    messages.NewSender(m.Sender),
			CreatedAt: m.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, resp)
}

// AddMember adds a user to a group, or a whole department's students (TPO staff only)
func (h *Handler) AddMember(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (req.Email == "") == (req.Department == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Provide either an email or a department"})
		return
	}

	if err := h.db.First(&models.Group{}, groupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	if req.Department != "" {
		added, err := addDepartmentStudents(h.db, uint(groupID), strings.ToUpper(strings.TrimSpace(req.Department)))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add members"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"added": added})
		return
	}

	// Find user by email
	var targetUser models.User
	if err := h.db.Where("email = ?", strings.ToLower(req.Email)).First(&targetUser).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	// Check if already a member
	var existingMembership models.GroupMembership
	if err := h.db.Where("user_id = ? AND group_id = ?", targetUser.ID, groupID).First(&existingMembership).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "User is already a member"})
		return
	}

	role := models.GroupRoleMember
	if req.Role != "" {
		role = models.GroupRole(req.Role)
	}
	membership := models.GroupMembership{
		UserID:  targetUser.ID,
		GroupID: uint(groupID),
		Role:    role,
	}
	if err := h.db.Create(&membership).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add member"})
		return
	}
	membership.User = targetUser

	c.JSON(http.StatusCreated, newMemberResponse(membership))
}

// RemoveMember removes a user from a group (TPO staff only)
func (h *Handler) RemoveMember(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}
	memberID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	// Prevent removing the last moderator
	var target models.GroupMembership
	if err := h.db.Where("user_id = ? AND group_id = ?", memberID, groupID).First(&target).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}
	if target.Role == models.GroupRoleModerator {
		var moderators int64
		h.db.Model(&models.GroupMembership{}).Where("group_id = ? AND role = ?", groupID, models.GroupRoleModerator).Count(&moderators)
		if moderators <= 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot remove the last moderator"})
			return
		}
	}

	// Hard delete so the user can be added back later
	if err := h.db.Unscoped().Delete(&target).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove member"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

// addDepartmentStudents enrols active students of dept who are not yet members
func addDepartmentStudents(tx *gorm.DB, groupID uint, dept string) (int, error) {
	var students []models.User
	if err := tx.Where("department = ? AND system_role = ? AND active = ?", dept, models.SystemRoleStudent, true).
		Where("id NOT IN (?)", tx.Model(&models.GroupMembership{}).Select("user_id").Where("group_id = ?", groupID)).
		Find(&students).Error; err != nil {
		return 0, err
	}
	for _, s := range students {
		if err := tx.Create(&models.GroupMembership{
			UserID:  s.ID,
			GroupID: groupID,
			Role:    models.GroupRoleMember,
		}).Error; err != nil {
			return 0, err
		}
	}
	return len(students), nil
}
