package chat

import (
	"context"
	"time"
)

// Transport is the REST backend as seen by the View
type Transport interface {
	ListGroups(ctx context.Context) ([]Group, error)
	GroupInfo(ctx context.Context, groupID uint) (*GroupInfo, error)
	// ListMessages returns the newest page when cursor is 0
	ListMessages(ctx context.Context, groupID, cursor uint) (*MessagePage, error)
	SearchMessages(ctx context.Context, groupID uint, query string) ([]Message, error)
	SendText(ctx context.Context, groupID uint, content string, replyTo *uint) (*Message, error)
	SendFile(ctx context.Context, groupID uint, file Attachment, caption string, replyTo *uint) (*Message, error)
	EditMessage(ctx context.Context, messageID uint, content string) (*Message, error)
	DeleteMessage(ctx context.Context, messageID uint) error
	ToggleReaction(ctx context.Context, messageID uint, emoji string) error
	TogglePin(ctx context.Context, messageID uint) error
}

// Notice kinds
const (
	NoticeSuccess = "success"
	NoticeError   = "error"
)

// Notifier shows a transient, dismissible notice
type Notifier interface {
	Notify(kind, text string)
}

// Confirmer asks the user a yes/no question
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// Ticker is the part of time.Ticker the poller uses
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(kind, text string)

func (f NotifierFunc) Notify(kind, text string) { f(kind, text) }

// ConfirmerFunc adapts a function to Confirmer
type ConfirmerFunc func(ctx context.Context, prompt string) bool

func (f ConfirmerFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }
