package client

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	apperrors "github.com/wfunc/board-sync/internal/errors"
	"go.uber.org/zap"
)

// MessageTypeGameUpdated 服务器推送的“有新数据”提示
const MessageTypeGameUpdated = "game_updated"

// WebSocket配置
const (
	// 读取pong超时
	pongWait = 60 * time.Second

	// 写超时
	writeWait = 10 * time.Second

	// 最大消息大小
	maxMessageSize = 64 * 1024
)

// Notice 推送消息
type Notice struct {
	Type     string `json:"type"`
	GameID   int64  `json:"game_id,omitempty"`
	Revision int64  `json:"revision"`
}

// Syncer 收到提示后立即同步（game.Scheduler）
type Syncer interface {
	SyncNow(ctx context.Context) error
}

// Notifier 订阅服务器推送，收到 game_updated 时触发一次立即同步。
// 推送只是加速手段，轮询仍是唯一可靠的数据来源。
type Notifier struct {
	url    string
	header http.Header
	syncer Syncer
	dialer *websocket.Dialer
	retry  time.Duration
	logger *zap.Logger
}

// NewNotifier 创建推送订阅
func NewNotifier(url string, header http.Header, syncer Syncer, retry time.Duration, logger *zap.Logger) *Notifier {
	if retry <= 0 {
		retry = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		url:    url,
		header: header,
		syncer: syncer,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		retry:  retry,
		logger: logger,
	}
}

// Run 连接并读取推送，断线后按间隔重连；ctx 结束或会话停止时返回
func (n *Notifier) Run(ctx context.Context) error {
	for {
		err := n.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if apperrors.Is(err, apperrors.ErrSessionStopped) {
			n.logger.Info("会话已停止，退出推送订阅")
			return nil
		}
		n.logger.Warn("推送连接断开，稍后重连",
			zap.String("url", n.url),
			zap.Duration("retry", n.retry),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(n.retry):
		}
	}
}

// listen 单次连接的读循环
func (n *Notifier) listen(ctx context.Context) error {
	conn, _, err := n.dialer.DialContext(ctx, n.url, n.header)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrWebSocketConnect, n.url)
	}
	defer conn.Close()

	// ctx 结束时关闭连接以解除阻塞的读取
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		conn.Close()
	})
	defer stop()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	n.logger.Info("推送连接已建立", zap.String("url", n.url))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrWebSocketClosed)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var notice Notice
		if err := json.Unmarshal(data, &notice); err != nil {
			n.logger.Warn("解析推送消息失败", zap.Error(err))
			continue
		}
		if notice.Type != MessageTypeGameUpdated {
			continue
		}

		n.logger.Debug("收到更新提示", zap.Int64("revision", notice.Revision))
		if err := n.syncer.SyncNow(ctx); err != nil {
			if apperrors.Is(err, apperrors.ErrSessionStopped) {
				return err
			}
			n.logger.Warn("推送触发的同步失败", zap.Error(err))
		}
	}
}
