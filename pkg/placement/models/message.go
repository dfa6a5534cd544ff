package models

import "time"

// Message is a single chat message. Deleted messages keep their row so that
// replies and the timeline stay intact; IsDeleted hides the content.
type Message struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	GroupID   uint      `gorm:"not null;index" json:"group_id"`
	SenderID  uint      `gorm:"not null;index" json:"sender_id"`
	Content   string    `gorm:"type:text" json:"content"`
	ReplyToID *uint     `gorm:"index" json:"reply_to_id"`

	// Attachment
	FileURL       string `json:"file_url,omitempty"`
	FileName      string `json:"file_name,omitempty"`
	FileType      string `json:"file_type,omitempty"`
	FileSize      int64  `json:"file_size,omitempty"`
	StoredName    string `gorm:"index" json:"-"` // Name on disk, unguessable
	DownloadCount uint   `gorm:"default:0" json:"download_count"`

	IsPinned   bool       `json:"is_pinned"`
	PinnedAt   *time.Time `json:"pinned_at"`
	PinnedByID *uint      `json:"pinned_by_id"`
	IsEdited   bool       `json:"is_edited"`
	EditedAt   *time.Time `json:"edited_at"`
	IsDeleted  bool       `gorm:"index" json:"is_deleted"`
	RemovedAt  *time.Time `json:"removed_at"`

	// Relationships
	Group     Group             `gorm:"foreignKey:GroupID" json:"-"`
	Sender    User              `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	ReplyTo   *Message          `gorm:"foreignKey:ReplyToID" json:"reply_to,omitempty"`
	Reactions []MessageReaction `gorm:"foreignKey:MessageID" json:"reactions,omitempty"`
}

// HasFile reports whether the message carries an attachment.
func (m *Message) HasFile() bool {
	return m.FileURL != ""
}

// MessageReaction records one user applying one emoji to one message.
type MessageReaction struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_reaction" json:"message_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_reaction" json:"user_id"`
	Emoji     string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_reaction" json:"emoji"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
