package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is how often the selected group is re-fetched
	DefaultPollInterval = 5 * time.Second
	// MinSearchLength is the shortest query sent to the server, in characters
	MinSearchLength = 2
)

// Layout decides whether the group list and the conversation share the screen
type Layout int

const (
	// LayoutWide shows both; the first group is selected automatically
	LayoutWide Layout = iota
	// LayoutNarrow shows the group list first and the conversation after a selection
	LayoutNarrow
)

// ErrMessageUnavailable is returned when a draft action targets a message
// that is not loaded or cannot take that action
var ErrMessageUnavailable = errors.New("message not available")

// Options configures a View. Transport is required.
type Options struct {
	Transport    Transport
	Viewer       User
	Notifier     Notifier
	Confirmer    Confirmer // nil declines every prompt
	Layout       Layout
	PollInterval time.Duration
	NewTicker    func(time.Duration) Ticker
	Logger       *zap.Logger
	// OnChange runs after every state change. It must not call back into
	// the View synchronously.
	OnChange func()
}

// Draft is the compose box. At most one of ReplyTo and Editing is set.
type Draft struct {
	Text       string
	Attachment *Attachment
	ReplyTo    *Message
	Editing    *Message
}

// SearchState holds the search panel. While Active its results replace the timeline.
type SearchState struct {
	Active  bool
	Query   string
	Results []Message
}

// InfoState holds the group info panel
type InfoState struct {
	Open bool
	Data *GroupInfo
}

// State is a snapshot of everything the View owns
type State struct {
	Groups     []Group
	SelectedID uint // 0 when the group list is showing
	Messages   []Message
	Pinned     []Message
	HasMore    bool
	Draft      Draft
	PickerFor  uint // message whose emoji picker is open
	Search     SearchState
	Info       InfoState
	Sending    bool
}

// Selected returns the selected group, or nil
func (s State) Selected() *Group {
	for i := range s.Groups {
		if s.Groups[i].ID == s.SelectedID {
			return &s.Groups[i]
		}
	}
	return nil
}

// View is the chat screen: group list, selected conversation, compose box and
// side panels. Every mutation is a transport call followed by a full reload.
type View struct {
	transport Transport
	viewer    User
	notifier  Notifier
	confirmer Confirmer
	layout    Layout
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	log       *zap.Logger
	onChange  func()

	mu       sync.Mutex
	state    State
	poll     *poller
	inflight int
	closed   bool
}

// NewView creates a View from opts
func NewView(opts Options) (*View, error) {
	if opts.Transport == nil {
		return nil, errors.New("chat: transport is required")
	}
	v := &View{
		transport: opts.Transport,
		viewer:    opts.Viewer,
		notifier:  opts.Notifier,
		confirmer: opts.Confirmer,
		layout:    opts.Layout,
		interval:  opts.PollInterval,
		newTicker: opts.NewTicker,
		log:       opts.Logger,
		onChange:  opts.OnChange,
	}
	if v.interval <= 0 {
		v.interval = DefaultPollInterval
	}
	if v.newTicker == nil {
		v.newTicker = NewRealTicker
	}
	if v.log == nil {
		v.log = zap.NewNop()
	}
	return v, nil
}

// Viewer is the identity the View acts as
func (v *View) Viewer() User {
	return v.viewer
}

func (v *View) changed() {
	if v.onChange != nil {
		v.onChange()
	}
}

func (v *View) notify(kind, text string) {
	if v.notifier != nil {
		v.notifier.Notify(kind, text)
	}
}

func (v *View) fail(err error, fallback string) {
	v.log.Warn(fallback, zap.Error(err))
	v.notify(NoticeError, ErrorMessage(err, fallback))
}

// LoadGroups fetches the caller's groups. In the wide layout the first group
// is selected when nothing is selected yet.
func (v *View) LoadGroups(ctx context.Context) error {
	groups, err := v.transport.ListGroups(ctx)
	if err != nil {
		v.fail(err, "Failed to load groups")
		return err
	}

	v.mu.Lock()
	v.state.Groups = groups
	autoSelect := uint(0)
	if v.state.SelectedID == 0 && v.layout == LayoutWide && len(groups) > 0 && !v.closed {
		autoSelect = groups[0].ID
	}
	v.mu.Unlock()
	v.changed()

	if autoSelect != 0 {
		return v.SelectGroup(ctx, autoSelect)
	}
	return nil
}

// resetGroupStateLocked clears everything scoped to the selected group
func (v *View) resetGroupStateLocked() {
	v.state.Messages = nil
	v.state.Pinned = nil
	v.state.HasMore = false
	v.state.Draft = Draft{}
	v.state.PickerFor = 0
	v.state.Search = SearchState{}
	v.state.Info = InfoState{}
}

// SelectGroup switches the conversation to groupID, loads it and starts
// polling it. The previous group's poller is stopped first.
func (v *View) SelectGroup(ctx context.Context, groupID uint) error {
	if groupID == 0 {
		v.Back()
		return nil
	}

	v.mu.Lock()
	old := v.poll
	v.poll = nil
	if v.state.SelectedID != groupID {
		v.state.SelectedID = groupID
		v.resetGroupStateLocked()
	}
	v.mu.Unlock()
	v.changed()

	if old != nil {
		old.halt()
	}

	err := v.LoadMessages(ctx, groupID, false)

	v.mu.Lock()
	if v.state.SelectedID == groupID && v.poll == nil && !v.closed {
		v.poll = v.startPoller(groupID)
	}
	v.mu.Unlock()

	return err
}

// Back deselects the group and stops polling
func (v *View) Back() {
	v.mu.Lock()
	old := v.poll
	v.poll = nil
	v.state.SelectedID = 0
	v.resetGroupStateLocked()
	v.mu.Unlock()

	if old != nil {
		old.halt()
	}
	v.changed()
}

// Close stops polling for good. The View keeps its last state.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	old := v.poll
	v.poll = nil
	v.mu.Unlock()

	if old != nil {
		old.halt()
	}
}

// LoadMessages replaces the message list and pinned subset of groupID.
// Silent loads never notify the user. Results for a group that is no longer
// selected are dropped.
func (v *View) LoadMessages(ctx context.Context, groupID uint, silent bool) error {
	page, err := v.transport.ListMessages(ctx, groupID, 0)
	if err != nil {
		if silent {
			v.log.Debug("background refresh failed", zap.Uint("group_id", groupID), zap.Error(err))
		} else {
			v.fail(err, "Failed to load messages")
		}
		return err
	}

	v.mu.Lock()
	if v.state.SelectedID != groupID {
		v.mu.Unlock()
		v.log.Debug("dropping messages for unselected group", zap.Uint("group_id", groupID))
		return nil
	}
	v.state.Messages = page.Messages
	v.state.Pinned = page.Pinned
	v.state.HasMore = page.HasMore
	v.mu.Unlock()
	v.changed()
	return nil
}

// Send dispatches the draft: an edit when editing, a file when one is
// attached, otherwise a text message. The draft survives failures.
func (v *View) Send(ctx context.Context) error {
	v.mu.Lock()
	groupID := v.state.SelectedID
	draft := v.state.Draft
	text := strings.TrimSpace(draft.Text)
	if groupID == 0 {
		v.mu.Unlock()
		return ErrNoGroup
	}
	if text == "" && draft.Attachment == nil {
		v.mu.Unlock()
		return ErrEmptyDraft
	}
	v.inflight++
	v.state.Sending = true
	v.mu.Unlock()
	v.changed()

	var replyTo *uint
	if draft.ReplyTo != nil {
		id := draft.ReplyTo.ID
		replyTo = &id
	}

	var err error
	switch {
	case draft.Editing != nil:
		_, err = v.transport.EditMessage(ctx, draft.Editing.ID, text)
	case draft.Attachment != nil:
		_, err = v.transport.SendFile(ctx, groupID, *draft.Attachment, text, replyTo)
	default:
		_, err = v.transport.SendText(ctx, groupID, text, replyTo)
	}

	v.mu.Lock()
	v.inflight--
	v.state.Sending = v.inflight > 0
	if err == nil && v.state.SelectedID == groupID {
		d := &v.state.Draft
		d.Text = ""
		d.ReplyTo = nil
		switch {
		case draft.Editing != nil:
			d.Editing = nil
		case draft.Attachment != nil:
			d.Attachment = nil
		}
	}
	v.mu.Unlock()
	v.changed()

	if err != nil {
		v.fail(err, "Failed to send message")
		return err
	}

	v.LoadMessages(ctx, groupID, false)
	v.LoadGroups(ctx)
	return nil
}

// React toggles the viewer's emoji on a message and closes the picker
func (v *View) React(ctx context.Context, messageID uint, emoji string) error {
	groupID, err := v.selected()
	if err != nil {
		return err
	}
	if err := v.actionable(messageID); err != nil {
		v.ClosePicker()
		return err
	}

	err = v.transport.ToggleReaction(ctx, messageID, emoji)
	if err != nil {
		v.log.Warn("reaction failed", zap.Uint("message_id", messageID), zap.Error(err))
		v.notify(NoticeError, "Failed to update reaction")
	} else {
		v.LoadMessages(ctx, groupID, false)
	}

	v.ClosePicker()
	return err
}

// TogglePin pins or unpins a message
func (v *View) TogglePin(ctx context.Context, messageID uint) error {
	groupID, err := v.selected()
	if err != nil {
		return err
	}

	wasPinned := false
	if m, ok := v.findMessage(messageID); ok {
		if m.IsDeleted {
			return ErrMessageUnavailable
		}
		wasPinned = m.IsPinned
	}

	if err := v.transport.TogglePin(ctx, messageID); err != nil {
		v.fail(err, "Failed to update pin")
		return err
	}

	v.LoadMessages(ctx, groupID, false)
	if wasPinned {
		v.notify(NoticeSuccess, "Message unpinned")
	} else {
		v.notify(NoticeSuccess, "Message pinned")
	}
	return nil
}

// Delete asks for confirmation and then deletes a message
func (v *View) Delete(ctx context.Context, messageID uint) error {
	groupID, err := v.selected()
	if err != nil {
		return err
	}
	if err := v.actionable(messageID); err != nil {
		return err
	}

	if v.confirmer == nil || !v.confirmer.Confirm(ctx, "Delete this message?") {
		return ErrCancelled
	}

	if err := v.transport.DeleteMessage(ctx, messageID); err != nil {
		v.fail(err, "Failed to delete message")
		return err
	}

	v.mu.Lock()
	d := &v.state.Draft
	if d.ReplyTo != nil && d.ReplyTo.ID == messageID {
		d.ReplyTo = nil
	}
	if d.Editing != nil && d.Editing.ID == messageID {
		d.Editing = nil
		d.Text = ""
	}
	v.mu.Unlock()

	v.LoadMessages(ctx, groupID, false)
	v.notify(NoticeSuccess, "Message deleted")
	return nil
}

// Search looks up query in the selected group. Queries shorter than
// MinSearchLength are not sent.
func (v *View) Search(ctx context.Context, query string) error {
	groupID, err := v.selected()
	if err != nil {
		return err
	}
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < MinSearchLength {
		return ErrQueryTooShort
	}

	results, err := v.transport.SearchMessages(ctx, groupID, q)
	if err != nil {
		v.fail(err, "Search failed")
		return err
	}

	v.mu.Lock()
	if v.state.SelectedID == groupID {
		v.state.Search = SearchState{Active: true, Query: q, Results: results}
	}
	v.mu.Unlock()
	v.changed()
	return nil
}

// ClearSearch leaves search mode and shows the timeline again
func (v *View) ClearSearch() {
	v.mu.Lock()
	v.state.Search = SearchState{}
	v.mu.Unlock()
	v.changed()
}

// ToggleGroupInfo opens the info panel with a fresh snapshot, or closes it
func (v *View) ToggleGroupInfo(ctx context.Context) error {
	v.mu.Lock()
	if v.state.Info.Open {
		v.state.Info = InfoState{}
		v.mu.Unlock()
		v.changed()
		return nil
	}
	groupID := v.state.SelectedID
	v.mu.Unlock()
	if groupID == 0 {
		return ErrNoGroup
	}

	info, err := v.transport.GroupInfo(ctx, groupID)
	if err != nil {
		v.fail(err, "Failed to load group info")
		return err
	}

	v.mu.Lock()
	if v.state.SelectedID == groupID {
		v.state.Info = InfoState{Open: true, Data: info}
	}
	v.mu.Unlock()
	v.changed()
	return nil
}

// SetText replaces the compose text
func (v *View) SetText(text string) {
	v.mu.Lock()
	v.state.Draft.Text = text
	v.mu.Unlock()
	v.changed()
}

// AttachFile sets the attachment sent with the next message
func (v *View) AttachFile(a Attachment) {
	v.mu.Lock()
	v.state.Draft.Attachment = &a
	v.mu.Unlock()
	v.changed()
}

// ClearAttachment drops the pending attachment
func (v *View) ClearAttachment() {
	v.mu.Lock()
	v.state.Draft.Attachment = nil
	v.mu.Unlock()
	v.changed()
}

// StartReply quotes a message in the next send. It cancels edit mode.
func (v *View) StartReply(messageID uint) error {
	m, ok := v.findMessage(messageID)
	if !ok || m.IsDeleted {
		return ErrMessageUnavailable
	}

	v.mu.Lock()
	d := &v.state.Draft
	if d.Editing != nil {
		d.Editing = nil
		d.Text = ""
	}
	d.ReplyTo = &m
	v.mu.Unlock()
	v.changed()
	return nil
}

// CancelReply drops the reply target
func (v *View) CancelReply() {
	v.mu.Lock()
	v.state.Draft.ReplyTo = nil
	v.mu.Unlock()
	v.changed()
}

// StartEdit loads one of the viewer's messages into the compose box. It
// cancels reply mode and drops any attachment.
func (v *View) StartEdit(messageID uint) error {
	m, ok := v.findMessage(messageID)
	if !ok || m.IsDeleted || m.Sender.ID != v.viewer.ID {
		return ErrMessageUnavailable
	}

	v.mu.Lock()
	d := &v.state.Draft
	d.Editing = &m
	d.ReplyTo = nil
	d.Attachment = nil
	d.Text = m.Content
	v.mu.Unlock()
	v.changed()
	return nil
}

// CancelEdit leaves edit mode and clears the loaded text
func (v *View) CancelEdit() {
	v.mu.Lock()
	if v.state.Draft.Editing != nil {
		v.state.Draft.Editing = nil
		v.state.Draft.Text = ""
	}
	v.mu.Unlock()
	v.changed()
}

// OpenPicker opens the emoji picker of one message, closing any other.
// Deleted messages take no reactions.
func (v *View) OpenPicker(messageID uint) error {
	if err := v.actionable(messageID); err != nil {
		return err
	}
	v.mu.Lock()
	v.state.PickerFor = messageID
	v.mu.Unlock()
	v.changed()
	return nil
}

// ClosePicker closes the emoji picker
func (v *View) ClosePicker() {
	v.mu.Lock()
	v.state.PickerFor = 0
	v.mu.Unlock()
	v.changed()
}

// State returns a copy of the current state
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := v.state
	s.Groups = append([]Group(nil), s.Groups...)
	s.Messages = append([]Message(nil), s.Messages...)
	s.Pinned = append([]Message(nil), s.Pinned...)
	s.Search.Results = append([]Message(nil), s.Search.Results...)
	if d := s.Draft.Attachment; d != nil {
		a := *d
		s.Draft.Attachment = &a
	}
	if r := s.Draft.ReplyTo; r != nil {
		m := *r
		s.Draft.ReplyTo = &m
	}
	if e := s.Draft.Editing; e != nil {
		m := *e
		s.Draft.Editing = &m
	}
	return s
}

// Polling reports whether a poller is running
func (v *View) Polling() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.poll != nil
}

func (v *View) selected() (uint, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.SelectedID == 0 {
		return 0, ErrNoGroup
	}
	return v.state.SelectedID, nil
}

// actionable rejects a loaded message that has been deleted. Messages that
// are not loaded are left to the server.
func (v *View) actionable(id uint) error {
	if m, ok := v.findMessage(id); ok && m.IsDeleted {
		return ErrMessageUnavailable
	}
	return nil
}

// findMessage looks in the timeline, the pinned list and search results
func (v *View) findMessage(id uint) (Message, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, list := range [][]Message{v.state.Messages, v.state.Pinned, v.state.Search.Results} {
		for _, m := range list {
			if m.ID == id {
				return m, true
			}
		}
	}
	return Message{}, false
}
