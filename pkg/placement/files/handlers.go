package files

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/placement/pkg/placement/models"
	"gorm.io/gorm"
)

// Handler serves chat attachments
type Handler struct {
	db    *gorm.DB
	store *Store
}

// NewHandler creates a new download handler
func NewHandler(db *gorm.DB, store *Store) *Handler {
	return &Handler{db: db, store: store}
}

// Download streams an attachment by its stored name.
// Stored names are random, so the URL itself is the capability; attachments
// of deleted messages are no longer served.
func (h *Handler) Download(c *gin.Context) {
	name := c.Param("name")

	path, err := h.store.Path(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	var msg models.Message
	if err := h.db.Where("stored_name = ? AND is_deleted = ?", name, false).First(&msg).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	h.db.Model(&msg).UpdateColumn("download_count", gorm.Expr("download_count + 1"))

	c.FileAttachment(path, msg.FileName)
}

// RegisterRoutes registers the public download route on the root router
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/files/:name", h.Download)
}
