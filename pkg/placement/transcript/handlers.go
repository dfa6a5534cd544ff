package transcript

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/placement/pkg/placement/auth"
	"github.com/mikepea/placement/pkg/placement/messages"
	"github.com/mikepea/placement/pkg/placement/models"
	"gorm.io/gorm"
)

// Handler handles transcript export requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new transcript handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// Entry is one message in an exported transcript
type Entry struct {
	ID        uint   `json:"id"`
	Time      string `json:"time"`
	Sender    string `json:"sender"`
	StudentID string `json:"student_id,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	FileName  string `json:"file_name,omitempty"`
	ReplyToID *uint  `json:"reply_to_id,omitempty"`
	Reactions string `json:"reactions,omitempty"` // e.g. "👍 2, 🎉 1"
	Edited    bool   `json:"edited"`
	Deleted   bool   `json:"deleted"`
	Pinned    bool   `json:"pinned"`
}

var csvHeader = []string{"id", "time", "sender", "student_id", "role", "content", "file_name", "reply_to_id", "reactions", "edited", "deleted", "pinned"}

func (e Entry) record() []string {
	replyTo := ""
	if e.ReplyToID != nil {
		replyTo = strconv.FormatUint(uint64(*e.ReplyToID), 10)
	}
	return []string{
		strconv.FormatUint(uint64(e.ID), 10),
		e.Time,
		e.Sender,
		e.StudentID,
		e.Role,
		e.Content,
		e.FileName,
		replyTo,
		e.Reactions,
		strconv.FormatBool(e.Edited),
		strconv.FormatBool(e.Deleted),
		strconv.FormatBool(e.Pinned),
	}
}

// NewEntry flattens a preloaded message. Deleted messages keep their row without content.
func NewEntry(m models.Message) Entry {
	resp := messages.NewMessageResponse(m)

	chips := make([]string, len(resp.Reactions))
	for i, r := range resp.Reactions {
		chips[i] = fmt.Sprintf("%s %d", r.Emoji, len(r.Users))
	}

	return Entry{
		ID:        m.ID,
		Time:      m.CreatedAt.UTC().Format(time.RFC3339),
		Sender:    resp.Sender.Name,
		StudentID: resp.Sender.StudentID,
		Role:      resp.Sender.Role,
		Content:   resp.Content,
		FileName:  resp.FileName,
		ReplyToID: m.ReplyToID,
		Reactions: strings.Join(chips, ", "),
		Edited:    resp.IsEdited,
		Deleted:   resp.IsDeleted,
		Pinned:    resp.IsPinned,
	}
}

// Export writes a group's full history as JSON or CSV (TPO staff only)
// @Summary Export group transcript
// @Tags chat
// @Produce json
// @Produce text/csv
// @Param id path int true "Group ID"
// @Param format query string false "json (default) or csv"
// @Param download query bool false "Send as attachment"
// @Security BearerAuth
// @Router /chat/groups/{id}/export [get]
func (h *Handler) Export(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", "json"))
	if format != "json" && format != "csv" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Format must be json or csv"})
		return
	}

	var group models.Group
	if err := h.db.First(&group, groupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	// TPO staff export groups they belong to; admins export any group
	role, _ := auth.GetSystemRole(c)
	if role != string(models.SystemRoleAdmin) {
		if err := h.db.Where("user_id = ? AND group_id = ?", userID, groupID).First(&models.GroupMembership{}).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
			return
		}
	}

	var list []models.Message
	if err := messages.WithRelations(h.db).Where("group_id = ?", groupID).Order("id").Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	entries := make([]Entry, len(list))
	for i, m := range list {
		entries[i] = NewEntry(m)
	}

	if c.Query("download") == "true" {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=group-%d-transcript.%s", group.ID, format))
	}

	if format == "json" {
		c.JSON(http.StatusOK, entries)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	w := csv.NewWriter(c.Writer)
	w.Write(csvHeader)
	for _, e := range entries {
		w.Write(e.record())
	}
	w.Flush()
}

// RegisterRoutes registers transcript routes under the chat router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/groups/:id/export", auth.RequireStaff(), h.Export)
}
