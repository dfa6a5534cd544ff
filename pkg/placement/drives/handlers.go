package drives

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/placement/pkg/placement/auth"
	"github.com/mikepea/placement/pkg/placement/models"
	"gorm.io/gorm"
)

// Handler handles placement drive requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new drives handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// Summary is the compact drive view embedded in chat group payloads
type Summary struct {
	ID       uint       `json:"id"`
	Company  string     `json:"company"`
	Position string     `json:"position"`
	Status   string     `json:"status"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// NewSummary converts a drive model into its summary
func NewSummary(d *models.Drive) *Summary {
	if d == nil {
		return nil
	}
	return &Summary{
		ID:       d.ID,
		Company:  d.Company,
		Position: d.Position,
		Status:   string(d.Status),
		Deadline: d.Deadline,
	}
}

// DriveResponse represents a drive in API responses
type DriveResponse struct {
	ID          uint       `json:"id"`
	Company     string     `json:"company"`
	Position    string     `json:"position"`
	Description string     `json:"description"`
	Department  string     `json:"department"`
	Status      string     `json:"status"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	GroupID     *uint      `json:"group_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateDriveRequest represents the request to create a drive
type CreateDriveRequest struct {
	Company     string     `json:"company" binding:"required"`
	Position    string     `json:"position" binding:"required"`
	Description string     `json:"description"`
	Department  string     `json:"department"`
	Status      string     `json:"status"`
	Deadline    *time.Time `json:"deadline"`
	CreateGroup bool       `json:"create_group"` // Also open a chat group for the drive
}

// UpdateDriveRequest represents the request to update a drive
type UpdateDriveRequest struct {
	Company     *string    `json:"company"`
	Position    *string    `json:"position"`
	Description *string    `json:"description"`
	Department  *string    `json:"department"`
	Status      *string    `json:"status"`
	Deadline    *time.Time `json:"deadline"`
}

func (h *Handler) toResponse(d models.Drive) DriveResponse {
	resp := DriveResponse{
		ID:          d.ID,
		Company:     d.Company,
		Position:    d.Position,
		Description: d.Description,
		Department:  d.Department,
		Status:      string(d.Status),
		Deadline:    d.Deadline,
		CreatedAt:   d.CreatedAt,
	}
	var group models.Group
	if err := h.db.Where("drive_id = ?", d.ID).Order("id").First(&group).Error; err == nil {
		resp.GroupID = &group.ID
	}
	return resp
}

// List returns drives, optionally filtered by status and department
// @Summary List drives
// @Tags drives
// @Produce json
// @Param status query string false "Drive status"
// @Param department query string false "Department"
// @Success 200 {array} DriveResponse
// @Security BearerAuth
// @Router /drives [get]
func (h *Handler) List(c *gin.Context) {
	query := h.db.Order("created_at DESC")

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if dept := c.Query("department"); dept != "" {
		// Drives without a department are open to everyone
		query = query.Where("department = ? OR department = ''", strings.ToUpper(dept))
	}

	var list []models.Drive
	if err := query.Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch drives"})
		return
	}

	responses := make([]DriveResponse, len(list))
	for i, d := range list {
		responses[i] = h.toResponse(d)
	}

	c.JSON(http.StatusOK, responses)
}

// Get returns a single drive
func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid drive ID"})
		return
	}

	var drive models.Drive
	if err := h.db.First(&drive, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Drive not found"})
		return
	}

	c.JSON(http.StatusOK, h.toResponse(drive))
}

// Create creates a drive and, when asked, its chat group
// @Summary Create a drive
// @Description Create a placement drive (TPO staff only)
// @Tags drives
// @Accept json
// @Produce json
// @Param request body CreateDriveRequest true "Drive details"
// @Success 201 {object} DriveResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Insufficient permissions"
// @Security BearerAuth
// @Router /drives [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateDriveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := models.DriveStatusUpcoming
	if req.Status != "" {
		status = models.DriveStatus(req.Status)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid drive status"})
			return
		}
	}

	drive := models.Drive{
		Company:     strings.TrimSpace(req.Company),
		Position:    strings.TrimSpace(req.Position),
		Description: req.Description,
		Department:  strings.ToUpper(strings.TrimSpace(req.Department)),
		Status:      status,
		Deadline:    req.Deadline,
		CreatedByID: userID,
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&drive).Error; err != nil {
			return err
		}
		if !req.CreateGroup {
			return nil
		}
		return createDriveGroup(tx, drive, userID)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create drive"})
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(drive))
}

// createDriveGroup opens the drive's chat group with the creator as moderator
// and every active student of the drive's department as a member.
func createDriveGroup(tx *gorm.DB, drive models.Drive, creatorID uint) error {
	group := models.Group{
		Name:        drive.Company + " - " + drive.Position,
		Department:  drive.Department,
		Description: "Discussion for the " + drive.Company + " drive",
		DriveID:     &drive.ID,
		CreatedByID: creatorID,
	}
	if err := tx.Create(&group).Error; err != nil {
		return err
	}

	if err := tx.Create(&models.GroupMembership{
		UserID:  creatorID,
		GroupID: group.ID,
		Role:    models.GroupRoleModerator,
	}).Error; err != nil {
		return err
	}

	if drive.Department == "" {
		return nil
	}

	var students []models.User
	if err := tx.Where("department = ? AND system_role = ? AND active = ?", drive.Department, models.SystemRoleStudent, true).
		Find(&students).Error; err != nil {
		return err
	}
	for _, s := range students {
		if err := tx.Create(&models.GroupMembership{
			UserID:  s.ID,
			GroupID: group.ID,
			Role:    models.GroupRoleMember,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

// Update updates a drive (TPO staff only)
func (h *Handler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid drive ID"})
		return
	}

	var drive models.Drive
	if err := h.db.First(&drive, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Drive not found"})
		return
	}

	var req UpdateDriveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make(map[string]interface{})
	if req.Company != nil {
		updates["company"] = strings.TrimSpace(*req.Company)
	}
	if req.Position != nil {
		updates["position"] = strings.TrimSpace(*req.Position)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Department != nil {
		updates["department"] = strings.ToUpper(strings.TrimSpace(*req.Department))
	}
	if req.Status != nil {
		if !models.DriveStatus(*req.Status).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid drive status"})
			return
		}
		updates["status"] = *req.Status
	}
	if req.Deadline != nil {
		updates["deadline"] = *req.Deadline
	}

	if len(updates) > 0 {
		if err := h.db.Model(&drive).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update drive"})
			return
		}
	}

	h.db.First(&drive, id)
	c.JSON(http.StatusOK, h.toResponse(drive))
}

// RegisterRoutes registers drive routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("", auth.RequireStaff(), h.Create)
	rg.PUT("/:id", auth.RequireStaff(), h.Update)
}
