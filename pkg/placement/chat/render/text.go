package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mikepea/placement/pkg/placement/chat"
)

// QuickReactions are offered by the emoji picker
var QuickReactions = []string{"👍", "❤️", "😂", "🎉", "😮", "🙏"}

// Printer writes the chat screen as styled terminal text. Styling is
// dropped automatically when w is not a terminal.
type Printer struct {
	w     io.Writer
	width int
	loc   *time.Location

	separator lipgloss.Style
	author    lipgloss.Style
	meta      lipgloss.Style
	quote     lipgloss.Style
	deleted   lipgloss.Style
	mineChip  lipgloss.Style
	heading   lipgloss.Style
	mine      lipgloss.Style
}

// NewPrinter creates a Printer. A width of 0 disables right alignment of
// the viewer's own messages.
func NewPrinter(w io.Writer, width int, loc *time.Location) *Printer {
	if loc == nil {
		loc = time.Local
	}
	r := lipgloss.NewRenderer(w)
	p := &Printer{
		w:         w,
		width:     width,
		loc:       loc,
		separator: r.NewStyle().Faint(true),
		author:    r.NewStyle().Bold(true),
		meta:      r.NewStyle().Faint(true),
		quote:     r.NewStyle().Faint(true).Italic(true),
		deleted:   r.NewStyle().Italic(true).Faint(true),
		mineChip:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		heading:   r.NewStyle().Bold(true).Underline(true),
		mine:      r.NewStyle(),
	}
	if width > 0 {
		p.mine = r.NewStyle().Width(width).Align(lipgloss.Right)
	}
	return p
}

// Groups writes the group list, marking the selected group
func (p *Printer) Groups(groups []chat.Group, selected uint, now time.Time) error {
	var b strings.Builder
	b.WriteString(p.heading.Render("Groups"))
	b.WriteByte('\n')
	if len(groups) == 0 {
		b.WriteString(p.meta.Render("No groups yet"))
		b.WriteByte('\n')
	}
	for _, g := range groups {
		marker := " "
		if g.ID == selected {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %3d  %s", marker, g.ID, p.author.Render(g.Name))
		if g.UnreadCount > 0 {
			fmt.Fprintf(&b, " (%d)", g.UnreadCount)
		}
		if g.Drive != nil {
			b.WriteString(p.meta.Render(fmt.Sprintf("  %s, %s [%s]", g.Drive.Company, g.Drive.Position, g.Drive.Status)))
		}
		b.WriteByte('\n')
		if lm := g.LastMessage; lm != nil {
			text := lm.Content
			if text == "" && lm.HasFile {
				text = "📎 " + lm.FileName
			}
			line := fmt.Sprintf("       %s: %s · %s", DisplayName(lm.Sender), text, humanize.RelTime(lm.CreatedAt, now, "ago", "from now"))
			b.WriteString(p.meta.Render(line))
			b.WriteByte('\n')
		}
	}
	return p.flush(&b)
}

// Conversation writes the selected group: pinned summary, then search
// results or the timeline, then the compose status
func (p *Printer) Conversation(s chat.State, viewer chat.User, now time.Time) error {
	var b strings.Builder

	title := fmt.Sprintf("Group %d", s.SelectedID)
	if g := s.Selected(); g != nil {
		title = g.Name
	}
	b.WriteString(p.heading.Render(title))
	b.WriteByte('\n')

	if len(s.Pinned) > 0 {
		b.WriteString(p.meta.Render(fmt.Sprintf("📌 %d pinned", len(s.Pinned))))
		b.WriteByte('\n')
		for _, m := range s.Pinned {
			fmt.Fprintf(&b, "   #%d %s: %s\n", m.ID, DisplayName(m.Sender), m.Content)
		}
	}

	if s.Search.Active {
		b.WriteString(p.separator.Render(fmt.Sprintf("── %d results for %q ──", len(s.Search.Results), s.Search.Query)))
		b.WriteByte('\n')
		for _, m := range s.Search.Results {
			b.WriteString(p.meta.Render(DayLabel(m.CreatedAt, now, p.loc)))
			b.WriteByte('\n')
			p.bubble(&b, m, viewer, now, s.PickerFor)
		}
	} else {
		if len(s.Messages) == 0 {
			b.WriteString(p.meta.Render("No messages yet"))
			b.WriteByte('\n')
		}
		for _, item := range Timeline(s.Messages, now, p.loc) {
			if item.IsSeparator() {
				b.WriteString(p.separator.Render("── " + item.Separator + " ──"))
				b.WriteByte('\n')
				continue
			}
			p.bubble(&b, *item.Message, viewer, now, s.PickerFor)
		}
	}

	p.draft(&b, s.Draft, s.Sending)
	return p.flush(&b)
}

// Info writes the group info panel
func (p *Printer) Info(info *chat.GroupInfo, now time.Time) error {
	var b strings.Builder
	b.WriteString(p.heading.Render(info.Name))
	b.WriteByte('\n')
	if info.Department != "" {
		fmt.Fprintf(&b, "Department: %s\n", info.Department)
	}
	if info.Description != "" {
		b.WriteString(info.Description)
		b.WriteByte('\n')
	}
	if d := info.Drive; d != nil {
		fmt.Fprintf(&b, "Drive: %s, %s [%s]", d.Company, d.Position, d.Status)
		if d.Deadline != nil {
			fmt.Fprintf(&b, " deadline %s", d.Deadline.In(p.loc).Format(DateLayout))
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "\nMembers (%d)\n", len(info.Members))
	for _, m := range info.Members {
		fmt.Fprintf(&b, "  %s", DisplayName(m.User()))
		if m.GroupRole != "" && m.GroupRole != "member" {
			b.WriteString(p.meta.Render(" " + m.GroupRole))
		}
		if m.Role != chat.RoleStudent {
			b.WriteString(p.meta.Render(" [" + string(m.Role) + "]"))
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "\nShared files (%d)\n", len(info.Files))
	for _, f := range info.Files {
		fmt.Fprintf(&b, "  📎 %s (%s) %s, %s\n", f.Name, humanize.Bytes(uint64(f.Size)),
			DisplayName(f.Sender), humanize.RelTime(f.CreatedAt, now, "ago", "from now"))
	}
	return p.flush(&b)
}

func (p *Printer) bubble(b *strings.Builder, m chat.Message, viewer chat.User, now time.Time, pickerFor uint) {
	bb := NewBubble(m, viewer, now, p.loc)
	var lines []string

	header := fmt.Sprintf("#%d %s", bb.ID, p.author.Render(bb.Author))
	if bb.Role.IsStaff() {
		header += p.meta.Render(" [" + string(bb.Role) + "]")
	}
	header += " " + p.meta.Render(bb.Time)
	if bb.Edited {
		header += p.meta.Render(" (edited)")
	}
	if bb.Pinned {
		header += " 📌"
	}
	lines = append(lines, header)

	if bb.Deleted {
		lines = append(lines, p.deleted.Render(bb.Body))
	} else {
		if q := bb.Quote; q != nil {
			lines = append(lines, p.quote.Render("│ "+q.Author+": "+q.Text))
		}
		if bb.Body != "" {
			lines = append(lines, strings.Split(bb.Body, "\n")...)
		}
		if f := bb.File; f != nil {
			line := "📎 " + f.Name
			if f.Size != "" {
				line += " (" + f.Size + ")"
			}
			lines = append(lines, line+" "+p.meta.Render(f.URL))
		}
		if len(bb.Chips) > 0 {
			chips := make([]string, 0, len(bb.Chips))
			for _, c := range bb.Chips {
				if c.Mine {
					chips = append(chips, p.mineChip.Render(fmt.Sprintf("[%s %d]", c.Emoji, c.Count)))
				} else {
					chips = append(chips, fmt.Sprintf(" %s %d ", c.Emoji, c.Count))
				}
			}
			lines = append(lines, strings.Join(chips, " "))
		}
		if pickerFor == m.ID {
			lines = append(lines, "react: "+strings.Join(QuickReactions, " "))
		}
		if hint := actionHint(bb.Actions); hint != "" {
			lines = append(lines, p.meta.Render(hint))
		}
	}

	block := strings.Join(lines, "\n")
	if bb.Mine {
		block = p.mine.Render(block)
	}
	b.WriteString(block)
	b.WriteString("\n\n")
}

func actionHint(a Actions) string {
	var names []string
	if a.Reply {
		names = append(names, "reply")
	}
	if a.React {
		names = append(names, "react")
	}
	if a.Edit {
		names = append(names, "edit")
	}
	if a.Delete {
		names = append(names, "delete")
	}
	if a.Pin {
		names = append(names, "pin")
	}
	return strings.Join(names, " · ")
}

func (p *Printer) draft(b *strings.Builder, d chat.Draft, sending bool) {
	switch {
	case d.Editing != nil:
		b.WriteString(p.meta.Render(fmt.Sprintf("Editing #%d (/cancel to stop)", d.Editing.ID)))
		b.WriteByte('\n')
	case d.ReplyTo != nil:
		b.WriteString(p.meta.Render(fmt.Sprintf("Replying to %s: %s (/cancel to stop)",
			DisplayName(d.ReplyTo.Sender), truncate(d.ReplyTo.Content, 40))))
		b.WriteByte('\n')
	}
	if a := d.Attachment; a != nil {
		b.WriteString(p.meta.Render(fmt.Sprintf("Attached: %s (%s)", a.Name, humanize.Bytes(uint64(len(a.Data))))))
		b.WriteByte('\n')
	}
	if sending {
		b.WriteString(p.meta.Render("Sending..."))
		b.WriteByte('\n')
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func (p *Printer) flush(b *strings.Builder) error {
	_, err := io.WriteString(p.w, b.String())
	return err
}
