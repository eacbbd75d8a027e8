// Package client 通过HTTP与权威游戏服务器通信，实现 game.Transport。
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/wfunc/board-sync/internal/errors"
	"github.com/wfunc/board-sync/internal/models"
	"go.uber.org/zap"
)

// 请求头
const (
	HeaderPlayer    = "X-Player"
	HeaderRequestID = "X-Request-ID"
)

// Client 游戏服务器HTTP客户端
type Client struct {
	BaseURL    string
	Username   string
	HTTPClient *http.Client
	logger     *zap.Logger
}

// New 创建客户端
func New(baseURL, username string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Username: username,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchSnapshot GET /game/{id}?lastUpdated={cursor}
func (c *Client) FetchSnapshot(ctx context.Context, id models.GameID, cursor models.Cursor) (*models.Snapshot, error) {
	query := url.Values{}
	query.Set("lastUpdated", strconv.FormatInt(int64(cursor), 10))

	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/game/%d", id), query, nil)
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(body)
}

// Move POST /game/{id}/piece/{unit}/move/{position}
func (c *Client) Move(ctx context.Context, id models.GameID, unit models.UnitID, target models.Position) error {
	path := fmt.Sprintf("/game/%d/piece/%d/move/%s", id, unit, url.PathEscape(string(target)))
	_, err := c.do(ctx, http.MethodPost, path, nil, nil)
	return err
}

// NewGame POST /newGame/
func (c *Client) NewGame(ctx context.Context) (models.GameID, error) {
	body, err := c.do(ctx, http.MethodPost, "/newGame/", nil, nil)
	if err != nil {
		return 0, err
	}

	var resp NewGameResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrMessageFormat, "newGame")
	}
	id := resp.GameID
	if id == 0 {
		id = resp.ID
	}
	if id <= 0 {
		return 0, apperrors.New(apperrors.ErrMessageFormat, "响应缺少 game_id")
	}
	return models.GameID(id), nil
}

// Lobby GET /lobby/
func (c *Client) Lobby(ctx context.Context) ([]models.LobbyGame, error) {
	body, err := c.do(ctx, http.MethodGet, "/lobby/", nil, nil)
	if err != nil {
		return nil, err
	}

	var games []models.LobbyGame
	if err := json.Unmarshal(body, &games); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrMessageFormat, "lobby")
	}
	return games, nil
}

// Message POST /game/{id}/message
func (c *Client) Message(ctx context.Context, id models.GameID, text string) error {
	form := url.Values{}
	form.Set("message", text)
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/game/%d/message", id), nil, form)
	return err
}

// AddBot POST /game/{id}/addBot
func (c *Client) AddBot(ctx context.Context, id models.GameID) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/game/%d/addBot", id), nil, nil)
	return err
}

// Start POST /game/{id}/start
func (c *Client) Start(ctx context.Context, id models.GameID) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/game/%d/start", id), nil, nil)
	return err
}

// NotifyURL 推送通道地址：ws(s)://.../game/{id}/ws
func (c *Client) NotifyURL(id models.GameID) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrInvalidParam, c.BaseURL)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + fmt.Sprintf("/game/%d/ws", id)
	return u.String(), nil
}

// Header 每个请求共用的身份头
func (c *Client) Header() http.Header {
	h := http.Header{}
	if c.Username != "" {
		h.Set(HeaderPlayer, c.Username)
	}
	return h
}

// do 发送请求并读取响应体。2xx 之外的状态码映射为 AppError：
// 404 -> ErrNotFound，其余 4xx -> ErrCommandRejected，5xx -> ErrBadStatus。
func (c *Client) do(ctx context.Context, method, path string, query, form url.Values) ([]byte, error) {
	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidParam, target)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range c.Header() {
		req.Header[k] = v
	}
	requestID := uuid.New().String()
	req.Header.Set(HeaderRequestID, requestID)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, err, method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTransport, "读取响应失败")
	}

	c.logger.Debug("http_request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
		zap.String("request_id", requestID))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, statusError(resp.StatusCode, method, path, data)
}

func transportError(ctx context.Context, err error, method, path string) error {
	detail := method + " " + path
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return apperrors.Wrap(err, apperrors.ErrCanceled, detail)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.ErrTimeout, detail)
	default:
		return apperrors.Wrap(err, apperrors.ErrTransport, detail)
	}
}

func statusError(status int, method, path string, body []byte) error {
	detail := fmt.Sprintf("%s %s: HTTP %d", method, path, status)

	// 服务器返回 ErrorResponse 时带上其中的说明
	var payload apperrors.ErrorResponse
	if json.Unmarshal(body, &payload) == nil && payload.Error != nil {
		detail += " " + payload.Error.Message
		if payload.Error.Details != "" {
			detail += ": " + payload.Error.Details
		}
	}

	switch {
	case status == http.StatusNotFound:
		return apperrors.New(apperrors.ErrNotFound, detail)
	case status >= 400 && status < 500:
		return apperrors.New(apperrors.ErrCommandRejected, detail)
	default:
		return apperrors.New(apperrors.ErrBadStatus, detail)
	}
}
