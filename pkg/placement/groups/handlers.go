package groups

import (
	"net/http"
	"sort"
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

// previewLength caps the last-message text shown in the group list
const previewLength = 80

// Handler handles chat group requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new groups handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateGroupRequest represents the request to create a group
type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Department  string `json:"department"`
	Description string `json:"description"`
	DriveID     *uint  `json:"drive_id"`
	// AddDepartment enrols every active student of Department
	AddDepartment bool `json:"add_department"`
}

// UpdateGroupRequest represents the request to update a group
type UpdateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MessagePreview is the newest message of a group, shown in the group list
type MessagePreview struct {
	ID        uint            `json:"id"`
	Content   string          `json:"content"`
	Sender    messages.Sender `json:"sender"`
	HasFile   bool            `json:"has_file"`
	FileName  string          `json:"file_name,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// GroupSummary represents a group in the caller's group list
type GroupSummary struct {
	ID          uint            `json:"id"`
	Name        string          `json:"name"`
	Department  string          `json:"department"`
	Description string          `json:"description"`
	Role        string          `json:"role"` // Caller's role in this group
	Drive       *drives.Summary `json:"drive,omitempty"`
	MemberCount int             `json:"member_count"`
	LastMessage *MessagePreview `json:"last_message,omitempty"`
	UnreadCount int             `json:"unread_count"`

	lastActivity time.Time
}

// List returns all groups the current user is a member of, most recently active first
// @Summary List my chat groups
// @Description Get the caller's groups with drive summary, last message and unread count
// @Tags chat
// @Produce json
// @Success 200 {array} GroupSummary
// @Security BearerAuth
// @Router /chat/groups [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var memberships []models.GroupMembership
	if err := h.db.Preload("Group").Preload("Group.Drive").Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}

	groups := make([]GroupSummary, 0, len(memberships))
	for _, m := range memberships {
		if m.Group.ID == 0 {
			continue // group was deleted
		}
		summary, err := h.summarize(m, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
			return
		}
		groups = append(groups, summary)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].lastActivity.After(groups[j].lastActivity)
	})

	c.JSON(http.StatusOK, groups)
}

func (h *Handler) summarize(m models.GroupMembership, userID uint) (GroupSummary, error) {
	summary := GroupSummary{
		ID:           m.Group.ID,
		Name:         m.Group.Name,
		Department:   m.Group.Department,
		Description:  m.Group.Description,
		Role:         string(m.Role),
		Drive:        drives.NewSummary(m.Group.Drive),
		lastActivity: m.Group.CreatedAt,
	}

	var memberCount int64
	if err := h.db.Model(&models.GroupMembership{}).Where("group_id = ?", m.GroupID).Count(&memberCount).Error; err != nil {
		return summary, err
	}
	summary.MemberCount = int(memberCount)

	var last []models.Message
	if err := h.db.Preload("Sender", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped() }).
		Where("group_id = ? AND is_deleted = ?", m.GroupID, false).
		Order("id DESC").Limit(1).Find(&last).Error; err != nil {
		return summary, err
	}
	if len(last) == 1 {
		msg := last[0]
		summary.LastMessage = &MessagePreview{
			ID:        msg.ID,
			Content:   truncate(msg.Content, previewLength),
			Sender:    messages.NewSender(msg.Sender),
			HasFile:   msg.HasFile(),
			FileName:  msg.FileName,
			CreatedAt: msg.CreatedAt,
		}
		summary.lastActivity = msg.CreatedAt
	}

	unread := h.db.Model(&models.Message{}).
		Where("group_id = ? AND sender_id <> ? AND is_deleted = ?", m.GroupID, userID, false)
	if m.LastReadAt != nil {
		unread = unread.Where("created_at > ?", *m.LastReadAt)
	}
	var unreadCount int64
	if err := unread.Count(&unreadCount).Error; err != nil {
		return summary, err
	}
	summary.UnreadCount = int(unreadCount)

	return summary, nil
}

// Create creates a new group with the creator as moderator (TPO staff only)
// @Summary Create a chat group
// @Tags chat
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} GroupSummary
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /chat/groups [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Department = strings.ToUpper(strings.TrimSpace(req.Department))
	if req.AddDepartment && req.Department == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Department is required to add its students"})
		return
	}

	var drive *models.Drive
	if req.DriveID != nil {
		drive = &models.Drive{}
		if err := h.db.First(drive, *req.DriveID).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Drive not found"})
			return
		}
	}

	var group models.Group
	memberCount := 1
	err := h.db.Transaction(func(tx *gorm.DB) error {
		group = models.Group{
			Name:        strings.TrimSpace(req.Name),
			Department:  req.Department,
			Description: req.Description,
			DriveID:     req.DriveID,
			CreatedByID: userID,
		}
		if err := tx.Create(&group).Error; err != nil {
			return err
		}

		membership := models.GroupMembership{
			UserID:  userID,
			GroupID: group.ID,
			Role:    models.GroupRoleModerator,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}

		if req.AddDepartment {
			added, err := addDepartmentStudents(tx, group.ID, req.Department)
			if err != nil {
				return err
			}
			memberCount += added
		}
		return nil
	})

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
		return
	}

	c.JSON(http.StatusCreated, GroupSummary{
		ID:          group.ID,
		Name:        group.Name,
		Department:  group.Department,
		Description: group.Description,
		Role:        string(models.GroupRoleModerator),
		Drive:       drives.NewSummary(drive),
		MemberCount: memberCount,
	})
}

// Update renames or re-describes a group (TPO staff only)
func (h *Handler) Update(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var req UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var group models.Group
	if err := h.db.First(&group, groupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	// Update fields if provided
	if req.Name != "" {
		group.Name = req.Name
	}
	if req.Description != "" {
		group.Description = req.Description
	}

	if err := h.db.Save(&group).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update group"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": group.ID, "name": group.Name, "description": group.Description})
}

// RegisterRoutes registers group routes under the chat router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/groups", h.List)
	rg.POST("/groups", auth.RequireStaff(), h.Create)
	rg.PUT("/groups/:id", auth.RequireStaff(), h.Update)
	rg.GET("/groups/:id/info", h.Info)
	rg.POST("/groups/:id/members", auth.RequireStaff(), h.AddMember)
	rg.DELETE("/groups/:id/members/:userId", auth.RequireStaff(), h.RemoveMember)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
