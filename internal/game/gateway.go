package game

import (
	"context"

	apperrors "github.com/wfunc/board-sync/internal/errors"
	"github.com/wfunc/board-sync/internal/logger"
	"github.com/wfunc/board-sync/internal/models"
	"go.uber.org/zap"
)

// Transport 权威服务器接口（HTTP实现见 internal/client）
type Transport interface {
	SnapshotFetcher
	Move(ctx context.Context, id models.GameID, unit models.UnitID, target models.Position) error
	NewGame(ctx context.Context) (models.GameID, error)
	Lobby(ctx context.Context) ([]models.LobbyGame, error)
	Message(ctx context.Context, id models.GameID, text string) error
	AddBot(ctx context.Context, id models.GameID) error
	Start(ctx context.Context, id models.GameID) error
}

// Resyncer 指令确认后触发的立即同步
type Resyncer interface {
	SyncNow(ctx context.Context) error
}

// Gateway 指令网关：发送指令，确认后立即同步一次。
// 失败不重试，本地状态保持到下一次轮询。
type Gateway struct {
	transport Transport
	gameID    models.GameID
	resync    Resyncer
	logger    *zap.Logger
}

// NewGateway 创建指令网关；resync 为 nil 时只发送指令（大厅场景）
func NewGateway(transport Transport, gameID models.GameID, resync Resyncer, l *zap.Logger) *Gateway {
	if l == nil {
		l = zap.NewNop()
	}
	return &Gateway{
		transport: transport,
		gameID:    gameID,
		resync:    resync,
		logger:    l,
	}
}

// SubmitMove 提交走子
func (g *Gateway) SubmitMove(ctx context.Context, unit models.UnitID, target models.Position) error {
	err := g.transport.Move(ctx, g.gameID, unit, target)
	return g.acknowledge(ctx, "move", err,
		zap.Int64("unit_id", int64(unit)),
		zap.String("target", string(target)))
}

// SubmitMessage 提交文字（卡牌游戏的回答/聊天）
func (g *Gateway) SubmitMessage(ctx context.Context, text string) error {
	if text == "" {
		return apperrors.New(apperrors.ErrInvalidParam, "消息为空")
	}
	err := g.transport.Message(ctx, g.gameID, text)
	return g.acknowledge(ctx, "message", err, zap.Int("length", len(text)))
}

// AddBot 添加机器人玩家
func (g *Gateway) AddBot(ctx context.Context) error {
	return g.acknowledge(ctx, "add_bot", g.transport.AddBot(ctx, g.gameID))
}

// StartGame 开始对局
func (g *Gateway) StartGame(ctx context.Context) error {
	return g.acknowledge(ctx, "start", g.transport.Start(ctx, g.gameID))
}

// RequestNewSession 请求服务器创建新会话
func (g *Gateway) RequestNewSession(ctx context.Context) (models.GameID, error) {
	id, err := g.transport.NewGame(ctx)
	err = classify(err)
	logger.LogCommand(g.logger, "new_game", int64(id), err)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Lobby 获取开放中的会话列表
func (g *Gateway) Lobby(ctx context.Context) ([]models.LobbyGame, error) {
	games, err := g.transport.Lobby(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return games, nil
}

// acknowledge 记录结果；确认成功后立即同步
func (g *Gateway) acknowledge(ctx context.Context, command string, err error, fields ...zap.Field) error {
	err = classify(err)
	logger.LogCommand(g.logger, command, int64(g.gameID), err, fields...)
	if err != nil {
		return err
	}

	if g.resync != nil {
		if syncErr := g.resync.SyncNow(ctx); syncErr != nil {
			// 指令本身已被接受，同步失败交给下一次轮询
			g.logger.Warn("指令确认后同步失败",
				zap.String("command", command),
				zap.Int64("game_id", int64(g.gameID)),
				zap.Error(syncErr))
		}
	}
	return nil
}

// classify 非AppError统一归为传输错误
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.Wrap(err, apperrors.ErrTransport)
}
