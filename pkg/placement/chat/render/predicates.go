// Package render turns chat messages into what the user sees: display
// names, action affordances, reaction chips, day separators and a
// terminal rendition of the chat screen.
package render

import (
	"time"

	"github.com/mikepea/placement/pkg/placement/chat"
)

// EditWindow is how long after sending a message its author may edit it
const EditWindow = 15 * time.Minute

// DeletedPlaceholder replaces the content of deleted messages
const DeletedPlaceholder = "This message was deleted"

// IsMine reports whether the viewer sent m
func IsMine(m chat.Message, viewer chat.User) bool {
	return m.Sender.ID == viewer.ID
}

// CanEdit reports whether the viewer may still edit m at now
func CanEdit(m chat.Message, viewer chat.User, now time.Time) bool {
	return IsMine(m, viewer) && !m.IsDeleted && now.Sub(m.CreatedAt) < EditWindow
}

// CanDelete reports whether the viewer may delete m
func CanDelete(m chat.Message, viewer chat.User) bool {
	return IsMine(m, viewer) || viewer.Role.IsStaff()
}

// CanPin reports whether the viewer may pin or unpin messages
func CanPin(viewer chat.User) bool {
	return viewer.Role.IsStaff()
}

// DisplayName is how a user is labelled everywhere in the chat: students by
// their student id when they have one, everyone else by name.
func DisplayName(u chat.User) string {
	if u.Role == chat.RoleStudent && u.StudentID != "" {
		return u.StudentID
	}
	return u.Name
}
