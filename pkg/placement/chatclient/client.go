// Package chatclient implements chat.Transport over the placement REST API.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mikepea/placement/pkg/placement/chat"
)

// DefaultTimeout bounds every request unless the caller's context is shorter
const DefaultTimeout = 15 * time.Second

// APIError is a non-2xx response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("placement api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("placement api: status %d: %s", e.StatusCode, e.Message)
}

// ServerMessage returns the server's error text
func (e *APIError) ServerMessage() string {
	return e.Message
}

// Client talks to one placement server. It is safe for concurrent use.
type Client struct {
	baseURL string
	httpc   *http.Client
	timeout time.Duration

	mu    sync.RWMutex
	token string
}

// Option configures a Client
type Option func(*Client)

// WithToken authenticates requests with a JWT or API key
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New returns a client for the server at baseURL, e.g. http://localhost:8080
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   http.DefaultClient,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ chat.Transport = (*Client)(nil)

// SetToken replaces the credential used for later requests
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current credential
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// FileURL resolves an attachment path from a message into an absolute URL
func (c *Client) FileURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + path
}

type loginResponse struct {
	Token string `json:"token"`
	User  me     `json:"user"`
}

type me struct {
	ID         uint   `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	StudentID  string `json:"student_id"`
	SystemRole string `json:"system_role"`
}

func (m me) user() chat.User {
	return chat.User{ID: m.ID, Name: m.Name, StudentID: m.StudentID, Role: chat.Role(m.SystemRole)}
}

// Login exchanges credentials for a token. The client keeps the token.
func (c *Client) Login(ctx context.Context, email, password string) (string, chat.User, error) {
	var out loginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return "", chat.User{}, err
	}
	c.SetToken(out.Token)
	return out.Token, out.User.user(), nil
}

// Me returns the identity behind the client's token
func (c *Client) Me(ctx context.Context) (chat.User, error) {
	var out me
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return chat.User{}, err
	}
	return out.user(), nil
}

// ListGroups returns the caller's groups, most recently active first
func (c *Client) ListGroups(ctx context.Context) ([]chat.Group, error) {
	var out []chat.Group
	if err := c.doJSON(ctx, http.MethodGet, "/api/chat/groups", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GroupInfo fetches the members and shared files of a group
func (c *Client) GroupInfo(ctx context.Context, groupID uint) (*chat.GroupInfo, error) {
	var out chat.GroupInfo
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/chat/groups/%d/info", groupID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages fetches a page of a group's timeline. A zero cursor asks
// for the newest page.
func (c *Client) ListMessages(ctx context.Context, groupID, cursor uint) (*chat.MessagePage, error) {
	path := fmt.Sprintf("/api/chat/groups/%d/messages", groupID)
	if cursor != 0 {
		path += "?before=" + strconv.FormatUint(uint64(cursor), 10)
	}
	var out chat.MessagePage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchMessages finds messages in a group by text or attachment name
func (c *Client) SearchMessages(ctx context.Context, groupID uint, query string) ([]chat.Message, error) {
	path := fmt.Sprintf("/api/chat/groups/%d/messages/search?q=%s", groupID, url.QueryEscape(query))
	var out struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SendText posts a text message, optionally as a reply
func (c *Client) SendText(ctx context.Context, groupID uint, content string, replyTo *uint) (*chat.Message, error) {
	body := struct {
		Content   string `json:"content"`
		ReplyToID *uint  `json:"reply_to_id,omitempty"`
	}{content, replyTo}
	var out chat.Message
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/chat/groups/%d/messages", groupID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendFile uploads an attachment as a multipart form. caption may be empty.
func (c *Client) SendFile(ctx context.Context, groupID uint, file chat.Attachment, caption string, replyTo *uint) (*chat.Message, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := createFilePart(mw, file)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, err
	}
	if caption != "" {
		if err := mw.WriteField("content", caption); err != nil {
			return nil, err
		}
	}
	if replyTo != nil {
		if err := mw.WriteField("reply_to_id", strconv.FormatUint(uint64(*replyTo), 10)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out chat.Message
	path := fmt.Sprintf("/api/chat/groups/%d/messages/file", groupID)
	if err := c.do(ctx, http.MethodPost, path, mw.FormDataContentType(), &buf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func createFilePart(mw *multipart.Writer, file chat.Attachment) (io.Writer, error) {
	if file.ContentType == "" {
		return mw.CreateFormFile("file", file.Name)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{"name": "file", "filename": file.Name}))
	h.Set("Content-Type", file.ContentType)
	return mw.CreatePart(h)
}

// EditMessage replaces the content of one of the caller's messages
func (c *Client) EditMessage(ctx context.Context, messageID uint, content string) (*chat.Message, error) {
	var out chat.Message
	body := map[string]string{"content": content}
	if err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/api/chat/messages/%d", messageID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMessage soft-deletes a message
func (c *Client) DeleteMessage(ctx context.Context, messageID uint) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/chat/messages/%d", messageID), nil, nil)
}

// ToggleReaction adds the caller's emoji or removes it if already present
func (c *Client) ToggleReaction(ctx context.Context, messageID uint, emoji string) error {
	body := map[string]string{"emoji": emoji}
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/chat/messages/%d/reactions", messageID), body, nil)
}

// TogglePin pins or unpins a message. Staff only.
func (c *Client) TogglePin(ctx context.Context, messageID uint) error {
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/chat/messages/%d/pin", messageID), nil, nil)
}

// Download fetches an attachment by the path carried in a message
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FileURL(path), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, contentType, body, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Message = body.Error
	}
	return apiErr
}
