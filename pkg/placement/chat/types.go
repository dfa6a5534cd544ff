// Package chat holds the client-side chat model and the View that
// orchestrates group selection, polling and message actions.
package chat

import "time"

// Role is a campus-wide role as reported by the server
type Role string

const (
	RoleStudent Role = "student"
	RoleTPO     Role = "tpo"
	RoleAdmin   Role = "admin"
)

// IsStaff reports whether the role may pin messages and delete others' messages
func (r Role) IsStaff() bool {
	return r == RoleTPO || r == RoleAdmin
}

// User identifies a message author, reply author, reaction user or the viewer
type User struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	StudentID string `json:"student_id,omitempty"`
	Role      Role   `json:"role"`
}

// DriveSummary is the placement drive a group belongs to
type DriveSummary struct {
	ID       uint       `json:"id"`
	Company  string     `json:"company"`
	Position string     `json:"position"`
	Status   string     `json:"status"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// MessagePreview is the newest message shown in the group list
type MessagePreview struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	Sender    User      `json:"sender"`
	HasFile   bool      `json:"has_file"`
	FileName  string    `json:"file_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Group is one entry of the caller's group list
type Group struct {
	ID          uint            `json:"id"`
	Name        string          `json:"name"`
	Department  string          `json:"department"`
	Description string          `json:"description"`
	Role        string          `json:"role"`
	Drive       *DriveSummary   `json:"drive,omitempty"`
	MemberCount int             `json:"member_count"`
	LastMessage *MessagePreview `json:"last_message,omitempty"`
	UnreadCount int             `json:"unread_count"`
}

// ReplyRef is the quoted message above a reply
type ReplyRef struct {
	ID        uint   `json:"id"`
	Content   string `json:"content"`
	FileName  string `json:"file_name,omitempty"`
	Sender    User   `json:"sender"`
	IsDeleted bool   `json:"is_deleted"`
}

// Reaction is everyone who applied one emoji to a message
type Reaction struct {
	Emoji string `json:"emoji"`
	Users []User `json:"users"`
}

// Message is a chat message as served by the backend
type Message struct {
	ID        uint       `json:"id"`
	GroupID   uint       `json:"group_id"`
	Sender    User       `json:"sender"`
	Content   string     `json:"content"`
	FileURL   string     `json:"file_url,omitempty"`
	FileName  string     `json:"file_name,omitempty"`
	FileType  string     `json:"file_type,omitempty"`
	FileSize  int64      `json:"file_size,omitempty"`
	ReplyTo   *ReplyRef  `json:"reply_to,omitempty"`
	Reactions []Reaction `json:"reactions"`
	IsPinned  bool       `json:"is_pinned"`
	IsEdited  bool       `json:"is_edited"`
	IsDeleted bool       `json:"is_deleted"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
}

// HasFile reports whether the message carries an attachment
func (m Message) HasFile() bool {
	return m.FileURL != ""
}

// MessagePage is one page of a group's timeline, oldest first, plus its pinned messages
type MessagePage struct {
	Messages   []Message `json:"messages"`
	Pinned     []Message `json:"pinned"`
	HasMore    bool      `json:"has_more"`
	NextCursor *uint     `json:"next_cursor,omitempty"`
}

// Member is one entry of the group info roster
type Member struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	StudentID string    `json:"student_id,omitempty"`
	Role      Role      `json:"role"`
	GroupRole string    `json:"group_role"`
	JoinedAt  time.Time `json:"joined_at"`
}

// User returns the member as a message-author identity
func (m Member) User() User {
	return User{ID: m.ID, Name: m.Name, StudentID: m.StudentID, Role: m.Role}
}

// SharedFile is an attachment listed in the group info panel
type SharedFile struct {
	MessageID uint      `json:"message_id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Type      string    `json:"type"`
	Size      int64     `json:"size"`
	Sender    User      `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupInfo is the group info panel snapshot
type GroupInfo struct {
	ID          uint          `json:"id"`
	Name        string        `json:"name"`
	Department  string        `json:"department"`
	Description string        `json:"description"`
	Drive       *DriveSummary `json:"drive,omitempty"`
	Members     []Member      `json:"members"`
	Files       []SharedFile  `json:"files"`
}

// Attachment is a file picked for sending
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}
