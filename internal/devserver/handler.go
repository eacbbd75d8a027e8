package devserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apperrors "github.com/wfunc/board-sync/internal/errors"
	"github.com/wfunc/board-sync/internal/middleware"
	ws "github.com/wfunc/board-sync/internal/websocket"
	"go.uber.org/zap"
)

// Handler 对局HTTP处理器
type Handler struct {
	service  *Service
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(service *Service, hub *ws.Hub, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 开发服务器不校验Origin
				return true
			},
		},
		logger: logger,
	}
}

// Lobby GET /lobby/
func (h *Handler) Lobby(c *gin.Context) {
	username, _ := middleware.GetUsername(c)
	games, err := h.service.Lobby(c.Request.Context(), c.GetString(contextVariant), username)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, games)
}

// NewGame POST /newGame/，变体由路由前缀决定
func (h *Handler) NewGame(c *gin.Context) {
	username, _ := middleware.GetUsername(c)
	variant := c.GetString(contextVariant)

	game, err := h.service.NewGame(c.Request.Context(), variant, username)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game_id": game.ID})
}

// Snapshot GET /game/:id/?lastUpdated=
func (h *Handler) Snapshot(c *gin.Context) {
	id, ok := h.gameID(c)
	if !ok {
		return
	}
	since, err := parseCursor(c.Query("lastUpdated"))
	if err != nil {
		h.fail(c, apperrors.Wrap(err, apperrors.ErrInvalidParam, "lastUpdated"))
		return
	}
	username, _ := middleware.GetUsername(c)

	snap, err := h.service.Snapshot(c.Request.Context(), id, username, since)
	if err != nil {
		h.fail(c, err)
		return
	}
	if snap == nil {
		// 没有新修订
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Move POST /game/:id/piece/:piece/move/:position
func (h *Handler) Move(c *gin.Context) {
	id, ok := h.gameID(c)
	if !ok {
		return
	}
	pieceID, err := strconv.ParseUint(c.Param("piece"), 10, 64)
	if err != nil {
		h.fail(c, apperrors.Wrap(err, apperrors.ErrInvalidParam, "piece"))
		return
	}
	username, _ := middleware.GetUsername(c)

	if err := h.service.Move(c.Request.Context(), id, username, uint(pieceID), c.Param("position")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// Message POST /game/:id/message
func (h *Handler) Message(c *gin.Context) {
	id, ok := h.gameID(c)
	if !ok {
		return
	}
	username, _ := middleware.GetUsername(c)

	if err := h.service.Message(c.Request.Context(), id, username, c.PostForm("message")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// AddBot POST /game/:id/addBot
func (h *Handler) AddBot(c *gin.Context) {
	id, ok := h.gameID(c)
	if !ok {
		return
	}
	if err := h.service.AddBot(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// Start POST /game/:id/start
func (h *Handler) Start(c *gin.Context) {
	id, ok := h.gameID(c)
	if !ok {
		return
	}
	if err := h.service.Start(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// Subscribe GET /game/:id/ws 推送通道
func (h *Handler) Subscribe(c *gin.Context) {
	id, ok := h.gameID(c)
	if !ok {
		return
	}
	if h.hub == nil {
		h.fail(c, apperrors.New(apperrors.ErrWebSocketConnect, "推送未启用"))
		return
	}
	username, _ := middleware.GetUsername(c)

	// 升级为WebSocket连接
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败",
			zap.Uint("game_id", id),
			zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, id, username)
	h.hub.Register(client)

	// 启动读写协程
	go client.WritePump()
	go client.ReadPump()
}

// gameID 解析路径中的对局ID
func (h *Handler) gameID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		h.fail(c, apperrors.Newf(apperrors.ErrInvalidParam, "无效的游戏ID: %s", c.Param("id")))
		return 0, false
	}
	return uint(id), true
}

// fail 输出错误响应
func (h *Handler) fail(c *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.Error("请求处理失败",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}

	requestID, _ := middleware.GetRequestID(c)
	resp := *appErr
	resp.Stack = nil
	c.JSON(status, apperrors.NewErrorResponse(&resp, requestID))
}

// parseCursor 解析 lastUpdated；兼容浮点时间戳，小数部分截断
func parseCursor(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
