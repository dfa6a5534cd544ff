package render

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mikepea/placement/pkg/placement/chat"
)

// Chip is one emoji's reaction toggle
type Chip struct {
	Emoji string
	Count int
	Mine  bool
	Names []string
}

// Chips groups a message's reactions by emoji, in server order
func Chips(m chat.Message, viewer chat.User) []Chip {
	chips := make([]Chip, 0, len(m.Reactions))
	for _, r := range m.Reactions {
		if len(r.Users) == 0 {
			continue
		}
		c := Chip{Emoji: r.Emoji, Count: len(r.Users)}
		for _, u := range r.Users {
			if u.ID == viewer.ID {
				c.Mine = true
			}
			c.Names = append(c.Names, DisplayName(u))
		}
		chips = append(chips, c)
	}
	return chips
}

// Actions are the affordances shown on a message
type Actions struct {
	Reply  bool
	React  bool
	Edit   bool
	Delete bool
	Pin    bool
}

// Quote is the compact block above a reply
type Quote struct {
	Author string
	Text   string
}

// File is the attachment line of a message
type File struct {
	Name string
	URL  string
	Type string
	Size string
}

// Bubble is everything needed to draw one message
type Bubble struct {
	ID      uint
	Mine    bool
	Author  string
	Role    chat.Role
	Time    string
	Pinned  bool
	Edited  bool
	Deleted bool
	Body    string
	Quote   *Quote
	File    *File
	Chips   []Chip
	Actions Actions
}

// NewBubble lays out m for viewer. Deleted messages keep only their header
// and the placeholder.
func NewBubble(m chat.Message, viewer chat.User, now time.Time, loc *time.Location) Bubble {
	if loc == nil {
		loc = time.Local
	}
	b := Bubble{
		ID:      m.ID,
		Mine:    IsMine(m, viewer),
		Author:  DisplayName(m.Sender),
		Role:    m.Sender.Role,
		Time:    m.CreatedAt.In(loc).Format("15:04"),
		Pinned:  m.IsPinned,
		Deleted: m.IsDeleted,
	}
	if m.IsDeleted {
		b.Body = DeletedPlaceholder
		return b
	}

	b.Body = m.Content
	b.Edited = m.IsEdited
	if m.ReplyTo != nil {
		b.Quote = newQuote(*m.ReplyTo)
	}
	if m.HasFile() {
		b.File = &File{Name: m.FileName, URL: m.FileURL, Type: m.FileType}
		if m.FileSize > 0 {
			b.File.Size = humanize.Bytes(uint64(m.FileSize))
		}
	}
	b.Chips = Chips(m, viewer)
	b.Actions = Actions{
		Reply:  true,
		React:  true,
		Edit:   CanEdit(m, viewer, now),
		Delete: CanDelete(m, viewer),
		Pin:    CanPin(viewer),
	}
	return b
}

func newQuote(r chat.ReplyRef) *Quote {
	q := &Quote{Author: DisplayName(r.Sender), Text: r.Content}
	switch {
	case r.IsDeleted:
		q.Text = DeletedPlaceholder
	case q.Text == "" && r.FileName != "":
		q.Text = "📎 " + r.FileName
	}
	return q
}
