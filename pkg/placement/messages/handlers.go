package messages

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/placement/pkg/placement/auth"
	"github.com/mikepea/placement/pkg/placement/files"
	"github.com/mikepea/placement/pkg/placement/models"
	"gorm.io/gorm"
)

const (
	// EditWindow is how long after sending a message its author may edit it
	EditWindow = 15 * time.Minute

	defaultPageSize = 50
	maxPageSize     = 100
	maxSearchHits   = 50
)

// Recorder receives chat activity events (metrics)
type Recorder interface {
	MessageSent(kind string)
	ReactionToggled(added bool)
}

type noopRecorder struct{}

func (noopRecorder) MessageSent(string)   {}
func (noopRecorder) ReactionToggled(bool) {}

// Handler handles chat message requests
type Handler struct {
	db    *gorm.DB
	store *files.Store
	rec   Recorder
	now   func() time.Time
}

// NewHandler creates a new messages handler. rec may be nil.
func NewHandler(db *gorm.DB, store *files.Store, rec Recorder) *Handler {
	if rec == nil {
		rec = noopRecorder{}
	}
	return &Handler{db: db, store: store, rec: rec, now: time.Now}
}

// SendMessageRequest represents a text message
type SendMessageRequest struct {
	Content   string `json:"content"`
	ReplyToID *uint  `json:"reply_to_id"`
}

// EditMessageRequest represents an edit of an existing message
type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// ReactionRequest represents a reaction toggle
type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required,max=32"`
}

func parseID(c *gin.Context, label string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + label + " ID"})
		return 0, false
	}
	return uint(id), true
}

// checkGroupMembership verifies the user is a member of the group
func (h *Handler) checkGroupMembership(userID, groupID uint) (*models.GroupMembership, error) {
	var membership models.GroupMembership
	if err := h.db.Where("user_id = ? AND group_id = ?", userID, groupID).First(&membership).Error; err != nil {
		return nil, err
	}
	return &membership, nil
}

// groupForMember resolves :id to a group the caller belongs to, answering 404 otherwise
func (h *Handler) groupForMember(c *gin.Context) (userID, groupID uint, ok bool) {
	userID, _ = auth.GetUserID(c)
	groupID, ok = parseID(c, "group")
	if !ok {
		return 0, 0, false
	}
	if _, err := h.checkGroupMembership(userID, groupID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return 0, 0, false
	}
	return userID, groupID, true
}

// messageForMember resolves :id to a message in a group the caller belongs to
func (h *Handler) messageForMember(c *gin.Context) (uint, *models.Message, bool) {
	userID, _ := auth.GetUserID(c)
	messageID, ok := parseID(c, "message")
	if !ok {
		return 0, nil, false
	}

	var msg models.Message
	if err := h.db.First(&msg, messageID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return 0, nil, false
	}
	if _, err := h.checkGroupMembership(userID, msg.GroupID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return 0, nil, false
	}
	return userID, &msg, true
}

func (h *Handler) reload(id uint) (MessageResponse, error) {
	var msg models.Message
	if err := WithRelations(h.db).First(&msg, id).Error; err != nil {
		return MessageResponse{}, err
	}
	return NewMessageResponse(msg), nil
}

// validateContent sanitises a body and enforces the length limit.
// An empty result is allowed only when allowEmpty is set (file captions).
func validateContent(raw string, allowEmpty bool) (string, string) {
	content := SanitizeContent(raw)
	if content == "" && !allowEmpty {
		return "", "Message content is required"
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", "Message is too long"
	}
	return content, ""
}

// validateReply checks that a reply target exists in the same group
func (h *Handler) validateReply(groupID uint, replyToID *uint) bool {
	if replyToID == nil {
		return true
	}
	var count int64
	h.db.Model(&models.Message{}).Where("id = ? AND group_id = ?", *replyToID, groupID).Count(&count)
	return count > 0
}

// List returns one page of a group's messages, oldest first, and marks the
// group read for the caller when the newest page is fetched.
// @Summary List messages
// @Tags chat
// @Produce json
// @Param id path int true "Group ID"
// @Param before query int false "Return messages older than this message ID"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} ListResponse
// @Security BearerAuth
// @Router /chat/groups/{id}/messages [get]
func (h *Handler) List(c *gin.Context) {
	userID, groupID, ok := h.groupForMember(c)
	if !ok {
		return
	}

	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = min(n, maxPageSize)
	}

	var before uint64
	if raw := c.Query("before"); raw != "" {
		var err error
		before, err = strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
			return
		}
	}

	query := WithRelations(h.db).Where("group_id = ?", groupID)
	if before > 0 {
		query = query.Where("id < ?", before)
	}

	var page []models.Message
	if err := query.Order("id DESC").Limit(limit + 1).Find(&page).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	resp := ListResponse{}
	if len(page) > limit {
		page = page[:limit]
		resp.HasMore = true
		oldest := page[len(page)-1].ID
		resp.NextCursor = &oldest
	}
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	resp.Messages = NewMessageResponses(page)

	var pinned []models.Message
	if err := WithRelations(h.db).
		Where("group_id = ? AND is_pinned = ? AND is_deleted = ?", groupID, true, false).
		Order("pinned_at DESC").Find(&pinned).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch pinned messages"})
		return
	}
	resp.Pinned = NewMessageResponses(pinned)

	if before == 0 {
		h.db.Model(&models.GroupMembership{}).
			Where("user_id = ? AND group_id = ?", userID, groupID).
			Update("last_read_at", h.now())
	}

	c.JSON(http.StatusOK, resp)
}

// Search finds messages in a group by text or attachment name
func (h *Handler) Search(c *gin.Context) {
	_, groupID, ok := h.groupForMember(c)
	if !ok {
		return
	}

	q := strings.TrimSpace(c.Query("q"))
	if utf8.RuneCountInString(q) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Search query must be at least 2 characters"})
		return
	}

	pattern := "%" + escapeLike(q) + "%"
	var hits []models.Message
	if err := WithRelations(h.db).
		Where("group_id = ? AND is_deleted = ?", groupID, false).
		Where(`(content LIKE ? ESCAPE '\' OR file_name LIKE ? ESCAPE '\')`, pattern, pattern).
		Order("id DESC").Limit(maxSearchHits).Find(&hits).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}

	c.JSON(http.StatusOK, SearchResponse{Query: q, Messages: NewMessageResponses(hits)})
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Send posts a text message to a group
// @Summary Send a message
// @Tags chat
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body SendMessageRequest true "Message"
// @Success 201 {object} MessageResponse
// @Security BearerAuth
// @Router /chat/groups/{id}/messages [post]
func (h *Handler) Send(c *gin.Context) {
	userID, groupID, ok := h.groupForMember(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content, problem := validateContent(req.Content, false)
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}
	if !h.validateReply(groupID, req.ReplyToID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Reply target not found"})
		return
	}

	msg := models.Message{
		GroupID:   groupID,
		SenderID:  userID,
		Content:   content,
		ReplyToID: req.ReplyToID,
	}
	if err := h.db.Create(&msg).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}
	h.rec.MessageSent("text")

	resp, err := h.reload(msg.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load message"})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// SendFile posts an attachment with an optional caption
func (h *Handler) SendFile(c *gin.Context) {
	userID, groupID, ok := h.groupForMember(c)
	if !ok {
		return
	}

	// Leave headroom for the other form fields
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.store.MaxSize()+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is required"})
		return
	}

	caption, problem := validateContent(c.PostForm("content"), true)
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}

	var replyToID *uint
	if raw := c.PostForm("reply_to_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reply target"})
			return
		}
		rid := uint(id)
		replyToID = &rid
	}
	if !h.validateReply(groupID, replyToID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Reply target not found"})
		return
	}

	stored, err := h.store.Save(fh)
	if err != nil {
		if errors.Is(err, files.ErrTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file"})
		return
	}

	msg := models.Message{
		GroupID:    groupID,
		SenderID:   userID,
		Content:    caption,
		ReplyToID:  replyToID,
		FileURL:    "/files/" + stored.Name,
		FileName:   stored.Original,
		FileType:   stored.ContentType,
		FileSize:   stored.Size,
		StoredName: stored.Name,
	}
	if err := h.db.Create(&msg).Error; err != nil {
		h.store.Remove(stored.Name)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send file"})
		return
	}
	h.rec.MessageSent("file")

	resp, err := h.reload(msg.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load message"})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Edit changes the text of the caller's own message within the edit window
func (h *Handler) Edit(c *gin.Context) {
	userID, msg, ok := h.messageForMember(c)
	if !ok {
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if msg.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only edit your own messages"})
		return
	}
	if msg.IsDeleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot edit a deleted message"})
		return
	}
	now := h.now()
	if now.Sub(msg.CreatedAt) >= EditWindow {
		c.JSON(http.StatusForbidden, gin.H{"error": "Messages can only be edited within 15 minutes"})
		return
	}

	content, problem := validateContent(req.Content, false)
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}

	if err := h.db.Model(msg).Updates(map[string]interface{}{
		"content":   content,
		"is_edited": true,
		"edited_at": now,
	}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to edit message"})
		return
	}

	resp, err := h.reload(msg.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load message"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Delete soft-deletes a message. Authors may delete their own messages and
// staff may delete any message in groups they belong to.
func (h *Handler) Delete(c *gin.Context) {
	userID, msg, ok := h.messageForMember(c)
	if !ok {
		return
	}

	if msg.SenderID != userID && !auth.IsStaff(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own messages"})
		return
	}
	if msg.IsDeleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message already deleted"})
		return
	}

	// The stored file stays on disk until the retention job purges it
	if err := h.db.Model(msg).Updates(map[string]interface{}{
		"is_deleted": true,
		"removed_at": h.now(),
		"content":    "",
		"is_pinned":  false,
		"pinned_at":  nil,
	}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete message"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
}

// React toggles the caller's reaction with the given emoji
func (h *Handler) React(c *gin.Context) {
	userID, msg, ok := h.messageForMember(c)
	if !ok {
		return
	}

	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	emoji := strings.TrimSpace(req.Emoji)
	if emoji == "" || strings.ContainsAny(emoji, " \t\n") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid emoji"})
		return
	}
	if msg.IsDeleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot react to a deleted message"})
		return
	}

	added := false
	err := h.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("message_id = ? AND user_id = ? AND emoji = ?", msg.ID, userID, emoji).
			Delete(&models.MessageReaction{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		added = true
		return tx.Create(&models.MessageReaction{MessageID: msg.ID, UserID: userID, Emoji: emoji}).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update reaction"})
		return
	}
	h.rec.ReactionToggled(added)

	c.JSON(http.StatusOK, gin.H{"reacted": added, "emoji": emoji})
}

// Pin toggles the pinned flag of a message (staff only)
func (h *Handler) Pin(c *gin.Context) {
	userID, msg, ok := h.messageForMember(c)
	if !ok {
		return
	}

	if msg.IsDeleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot pin a deleted message"})
		return
	}

	updates := map[string]interface{}{"is_pinned": !msg.IsPinned}
	if msg.IsPinned {
		updates["pinned_at"] = nil
		updates["pinned_by_id"] = nil
	} else {
		updates["pinned_at"] = h.now()
		updates["pinned_by_id"] = userID
	}

	if err := h.db.Model(msg).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update pin"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"is_pinned": !msg.IsPinned})
}

// RegisterRoutes registers message routes under the chat router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/groups/:id/messages", h.List)
	rg.GET("/groups/:id/messages/search", h.Search)
	rg.POST("/groups/:id/messages", h.Send)
	rg.POST("/groups/:id/messages/file", h.SendFile)
	rg.PUT("/messages/:id", h.Edit)
	rg.DELETE("/messages/:id", h.Delete)
	rg.POST("/messages/:id/reactions", h.React)
	rg.POST("/messages/:id/pin", auth.RequireStaff(), h.Pin)
}
