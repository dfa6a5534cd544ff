package messages

import (
	"time"
	"unicode/utf8"

	"github.com/mikepea/placement/pkg/placement/models"
	"gorm.io/gorm"
)

// replySnippetLength caps the quoted text carried with a reply
const replySnippetLength = 120

// Sender is the public identity attached to messages, replies and reactions
type Sender struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	StudentID string `json:"student_id,omitempty"`
	Role      string `json:"role"`
}

// NewSender converts a user into its public identity
func NewSender(u models.User) Sender {
	return Sender{
		ID:        u.ID,
		Name:      u.Name,
		StudentID: u.StudentID,
		Role:      string(u.SystemRole),
	}
}

// ReplyPreview is the quoted message shown above a reply
type ReplyPreview struct {
	ID        uint   `json:"id"`
	Content   string `json:"content"`
	FileName  string `json:"file_name,omitempty"`
	Sender    Sender `json:"sender"`
	IsDeleted bool   `json:"is_deleted"`
}

// Reaction groups everyone who applied one emoji
type Reaction struct {
	Emoji string   `json:"emoji"`
	Users []Sender `json:"users"`
}

// MessageResponse represents a message in API responses
type MessageResponse struct {
	ID        uint          `json:"id"`
	GroupID   uint          `json:"group_id"`
	Sender    Sender        `json:"sender"`
	Content   string        `json:"content"`
	FileURL   string        `json:"file_url,omitempty"`
	FileName  string        `json:"file_name,omitempty"`
	FileType  string        `json:"file_type,omitempty"`
	FileSize  int64         `json:"file_size,omitempty"`
	ReplyTo   *ReplyPreview `json:"reply_to,omitempty"`
	Reactions []Reaction    `json:"reactions"`
	IsPinned  bool          `json:"is_pinned"`
	IsEdited  bool          `json:"is_edited"`
	IsDeleted bool          `json:"is_deleted"`
	CreatedAt time.Time     `json:"created_at"`
	EditedAt  *time.Time    `json:"edited_at,omitempty"`
}

// ListResponse is one page of a group's timeline plus its pinned messages
type ListResponse struct {
	Messages   []MessageResponse `json:"messages"`
	Pinned     []MessageResponse `json:"pinned"`
	HasMore    bool              `json:"has_more"`
	NextCursor *uint             `json:"next_cursor,omitempty"`
}

// SearchResponse holds search hits, newest first
type SearchResponse struct {
	Query    string            `json:"query"`
	Messages []MessageResponse `json:"messages"`
}

// WithRelations preloads everything NewMessageResponse reads.
// Senders are loaded unscoped so messages from removed accounts keep a name.
func WithRelations(db *gorm.DB) *gorm.DB {
	unscoped := func(tx *gorm.DB) *gorm.DB { return tx.Unscoped() }
	return db.
		Preload("Sender", unscoped).
		Preload("ReplyTo").
		Preload("ReplyTo.Sender", unscoped).
		Preload("Reactions", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Preload("Reactions.User", unscoped)
}

// NewMessageResponse converts a preloaded message. Deleted messages lose
// their content and attachment.
func NewMessageResponse(m models.Message) MessageResponse {
	resp := MessageResponse{
		ID:        m.ID,
		GroupID:   m.GroupID,
		Sender:    NewSender(m.Sender),
		Content:   m.Content,
		Reactions: groupReactions(m.Reactions),
		IsPinned:  m.IsPinned,
		IsEdited:  m.IsEdited,
		IsDeleted: m.IsDeleted,
		CreatedAt: m.CreatedAt,
		EditedAt:  m.EditedAt,
	}

	if m.IsDeleted {
		resp.Content = ""
		resp.IsPinned = false
	} else if m.HasFile() {
		resp.FileURL = m.FileURL
		resp.FileName = m.FileName
		resp.FileType = m.FileType
		resp.FileSize = m.FileSize
	}

	if m.ReplyTo != nil {
		preview := &ReplyPreview{
			ID:        m.ReplyTo.ID,
			Sender:    NewSender(m.ReplyTo.Sender),
			IsDeleted: m.ReplyTo.IsDeleted,
		}
		if !m.ReplyTo.IsDeleted {
			preview.Content = truncate(m.ReplyTo.Content, replySnippetLength)
			preview.FileName = m.ReplyTo.FileName
		}
		resp.ReplyTo = preview
	}

	return resp
}

// NewMessageResponses converts a slice of preloaded messages
func NewMessageResponses(list []models.Message) []MessageResponse {
	out := make([]MessageResponse, len(list))
	for i, m := range list {
		out[i] = NewMessageResponse(m)
	}
	return out
}

func groupReactions(reactions []models.MessageReaction) []Reaction {
	out := []Reaction{}
	index := make(map[string]int)
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(out)
			index[r.Emoji] = i
			out = append(out, Reaction{Emoji: r.Emoji})
		}
		out[i].Users = append(out[i].Users, NewSender(r.User))
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
