package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mikepea/placement/pkg/placement/chat"
	"github.com/mikepea/placement/pkg/placement/chat/render"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// wideWidth is the narrowest terminal that shows the group list and the
// conversation together
const wideWidth = 100

// maxAttachment mirrors the server's default upload limit
const maxAttachment = 10 << 20

const helpText = `Type a message and press enter to send it.
  /groups            refresh and list groups
  /open <id>         open a group
  /back              return to the group list
  /reply <msg>       reply to a message
  /edit <msg>        edit your message (within 15 minutes)
  /cancel            stop replying or editing
  /delete <msg>      delete a message
  /react <msg> [e]   toggle a reaction, or open the picker
  /pin <msg>         pin or unpin a message (staff)
  /search <text>     search this group
  /clear             leave search results
  /info              toggle the group info panel
  /attach <path>     attach a file to the next message
  /detach            drop the attachment
  /send              send the draft as it is
  /quit              exit`

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [group-id]",
		Short: "Open the interactive chat",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var groupID uint
			if len(args) == 1 {
				id, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid group id %q", args[0])
				}
				groupID = uint(id)
			}

			client, p, err := opts.client()
			if err != nil {
				return err
			}
			interval, err := p.Interval()
			if err != nil {
				return err
			}
			logger, err := opts.logger(p, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			viewer, err := client.Me(ctx)
			if err != nil {
				return errors.New(chatErrorText(err))
			}

			width := terminalWidth(cmd.OutOrStdout())
			s := newSession(cmd.InOrStdin(), cmd.OutOrStdout(), viewer, width, logger)
			view, err := chat.NewView(chat.Options{
				Transport:    client,
				Viewer:       viewer,
				Notifier:     s,
				Confirmer:    s,
				Layout:       layoutFor(width),
				PollInterval: interval,
				Logger:       logger,
				OnChange:     s.markDirty,
			})
			if err != nil {
				return err
			}
			defer view.Close()
			s.view = view

			logger.Debug("chat started", zap.String("server", p.Server), zap.Uint("user_id", viewer.ID))
			return s.run(ctx, groupID)
		},
	}
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

func layoutFor(width int) chat.Layout {
	if width >= wideWidth {
		return chat.LayoutWide
	}
	return chat.LayoutNarrow
}

// session drives a View from line-oriented input
type session struct {
	view    *chat.View
	viewer  chat.User
	lines   chan string
	dirty   chan struct{}
	printer *render.Printer
	log     *zap.Logger
	now     func() time.Time

	outMu sync.Mutex
	out   io.Writer

	// signature of the last conversation drawn, to skip redraws when a poll changed nothing
	drawn string
}

func newSession(in io.Reader, out io.Writer, viewer chat.User, width int, logger *zap.Logger) *session {
	s := &session{
		viewer: viewer,
		lines:  make(chan string),
		dirty:  make(chan struct{}, 1),
		out:    out,
		log:    logger,
		now:    time.Now,
	}
	s.printer = render.NewPrinter(&lockedWriter{s}, width, time.Local)
	go s.readLines(in)
	return s
}

type lockedWriter struct{ s *session }

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.s.outMu.Lock()
	defer w.s.outMu.Unlock()
	return w.s.out.Write(p)
}

func (s *session) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *session) readLines(in io.Reader) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		s.lines <- sc.Text()
	}
	close(s.lines)
}

// Notify implements chat.Notifier
func (s *session) Notify(kind, text string) {
	mark := "✓"
	if kind == chat.NoticeError {
		mark = "✗"
	}
	s.printf("%s %s\n", mark, text)
}

// Confirm implements chat.Confirmer by reading the next input line
func (s *session) Confirm(ctx context.Context, prompt string) bool {
	s.printf("%s [y/N]: ", prompt)
	select {
	case line, ok := <-s.lines:
		if !ok {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *session) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *session) run(ctx context.Context, groupID uint) error {
	if err := s.view.LoadGroups(ctx); err != nil {
		return errors.New(chatErrorText(err))
	}
	if groupID != 0 {
		s.view.SelectGroup(ctx, groupID)
	}
	s.draw(true)
	s.printf("Type /help for commands\n")

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-s.lines:
			if !ok {
				return nil
			}
			if quit := s.handle(ctx, line); quit {
				return nil
			}
		case <-s.dirty:
			s.draw(false)
		}
	}
}

// handle runs one input line. It reports whether the session should end.
func (s *session) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		s.view.SetText(line)
		s.send(ctx)
		return false
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "quit", "exit", "q":
		return true
	case "help", "h":
		s.printf("%s\n", helpText)
		return false
	case "groups":
		s.view.LoadGroups(ctx)
		st := s.view.State()
		s.printer.Groups(st.Groups, st.SelectedID, s.now())
		return false
	case "open":
		id, ok := s.parseID(arg)
		if !ok {
			return false
		}
		s.view.SelectGroup(ctx, id)
	case "back":
		s.view.Back()
	case "reply":
		if id, ok := s.parseID(arg); ok {
			s.report(s.view.StartReply(id))
		}
	case "edit":
		id, ok := s.parseID(arg)
		if !ok {
			return false
		}
		if m, found := s.message(id); found && !render.CanEdit(m, s.viewer, s.now()) {
			s.printf("Only your own messages from the last 15 minutes can be edited\n")
			return false
		}
		s.report(s.view.StartEdit(id))
	case "cancel":
		s.view.CancelReply()
		s.view.CancelEdit()
	case "delete":
		id, ok := s.parseID(arg)
		if !ok {
			return false
		}
		if m, found := s.message(id); found && (m.IsDeleted || !render.CanDelete(m, s.viewer)) {
			s.printf("You cannot delete that message\n")
			return false
		}
		s.report(s.view.Delete(ctx, id))
	case "react":
		idText, emoji, _ := strings.Cut(arg, " ")
		id, ok := s.parseID(idText)
		if !ok {
			return false
		}
		if emoji = strings.TrimSpace(emoji); emoji == "" {
			s.report(s.view.OpenPicker(id))
		} else {
			s.report(s.view.React(ctx, id, emoji))
		}
	case "pin":
		id, ok := s.parseID(arg)
		if !ok {
			return false
		}
		if !render.CanPin(s.viewer) {
			s.printf("Only placement staff can pin messages\n")
			return false
		}
		s.report(s.view.TogglePin(ctx, id))
	case "search":
		s.report(s.view.Search(ctx, arg))
	case "clear":
		s.view.ClearSearch()
	case "info":
		if s.report(s.view.ToggleGroupInfo(ctx)) {
			if info := s.view.State().Info; info.Open && info.Data != nil {
				s.printer.Info(info.Data, s.now())
				return false
			}
		}
	case "attach":
		s.attach(arg)
	case "detach":
		s.view.ClearAttachment()
	case "send":
		s.send(ctx)
	default:
		s.printf("Unknown command /%s, try /help\n", name)
		return false
	}

	s.draw(true)
	return false
}

func (s *session) send(ctx context.Context) {
	err := s.view.Send(ctx)
	switch {
	case errors.Is(err, chat.ErrNoGroup):
		s.printf("Open a group first: /open <id>\n")
	case errors.Is(err, chat.ErrEmptyDraft):
	case err != nil:
		// already notified
	default:
		s.draw(true)
	}
}

func (s *session) attach(path string) {
	if path == "" {
		s.printf("Usage: /attach <path>\n")
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		s.printf("Cannot read %s: %v\n", path, err)
		return
	}
	if info.Size() > maxAttachment {
		s.printf("%s is %s, the limit is %s\n", filepath.Base(path),
			humanize.Bytes(uint64(info.Size())), humanize.Bytes(maxAttachment))
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.printf("Cannot read %s: %v\n", path, err)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	s.view.AttachFile(chat.Attachment{Name: filepath.Base(path), ContentType: contentType, Data: data})
	s.log.Debug("file attached", zap.String("name", filepath.Base(path)), zap.Int("bytes", len(data)))
}

// report prints local precondition failures and reports success
func (s *session) report(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, chat.ErrNoGroup):
		s.printf("Open a group first: /open <id>\n")
	case errors.Is(err, chat.ErrQueryTooShort):
		s.printf("Search needs at least %d characters\n", chat.MinSearchLength)
	case errors.Is(err, chat.ErrMessageUnavailable):
		s.printf("That message is not available\n")
	case errors.Is(err, chat.ErrCancelled):
		s.printf("Cancelled\n")
	}
	return false
}

func (s *session) parseID(arg string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimPrefix(arg, "#"), 10, 32)
	if err != nil || id == 0 {
		s.printf("Expected a numeric id, got %q\n", arg)
		return 0, false
	}
	return uint(id), true
}

func (s *session) message(id uint) (chat.Message, bool) {
	st := s.view.State()
	for _, list := range [][]chat.Message{st.Messages, st.Pinned, st.Search.Results} {
		for _, m := range list {
			if m.ID == id {
				return m, true
			}
		}
	}
	return chat.Message{}, false
}

// draw prints the current screen. Unforced draws are skipped when the
// conversation has not changed since the last one.
func (s *session) draw(force bool) {
	st := s.view.State()
	if st.SelectedID == 0 {
		if force {
			s.drawn = ""
			s.printer.Groups(st.Groups, 0, s.now())
		}
		return
	}

	sig := signature(st)
	if !force && sig == s.drawn {
		return
	}
	s.drawn = sig
	s.printer.Conversation(st, s.viewer, s.now())
}

func signature(st chat.State) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%t|", st.SelectedID, st.PickerFor, st.Sending)
	fmt.Fprintf(h, "search:%t:%q|", st.Search.Active, st.Search.Query)
	hashMessages(h, st.Messages)
	hashMessages(h, st.Pinned)
	hashMessages(h, st.Search.Results)

	d := st.Draft
	fmt.Fprintf(h, "draft:%q|", d.Text)
	if d.ReplyTo != nil {
		fmt.Fprintf(h, "reply:%d|", d.ReplyTo.ID)
	}
	if d.Editing != nil {
		fmt.Fprintf(h, "edit:%d|", d.Editing.ID)
	}
	if d.Attachment != nil {
		fmt.Fprintf(h, "file:%q:%d|", d.Attachment.Name, len(d.Attachment.Data))
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func hashMessages(w io.Writer, msgs []chat.Message) {
	fmt.Fprintf(w, "[%d", len(msgs))
	for _, m := range msgs {
		fmt.Fprintf(w, "|%d:%t:%t:%t:%q:%q", m.ID, m.IsEdited, m.IsDeleted, m.IsPinned, m.Content, m.FileURL)
		if m.EditedAt != nil {
			fmt.Fprintf(w, ":%d", m.EditedAt.UnixNano())
		}
		if r := m.ReplyTo; r != nil {
			fmt.Fprintf(w, ":re%d:%t:%q", r.ID, r.IsDeleted, r.Content)
		}
		for _, r := range m.Reactions {
			fmt.Fprintf(w, ":%s", r.Emoji)
			for _, u := range r.Users {
				fmt.Fprintf(w, ",%d", u.ID)
			}
		}
	}
	io.WriteString(w, "]")
}
