// Package devserver 权威游戏服务器的开发实现：保存对局、校验走子并按修订号返回增量快照。
package devserver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wfunc/board-sync/internal/client"
	apperrors "github.com/wfunc/board-sync/internal/errors"
	"github.com/wfunc/board-sync/internal/models"
	"github.com/wfunc/board-sync/internal/repository"
	"go.uber.org/zap"
)

// maxSeats 每局的座位数
const maxSeats = 2

// Notifier 新修订的推送
type Notifier interface {
	NotifyGame(gameID uint, revision int64)
}

// Service 对局服务。所有写操作由 mu 串行化。
type Service struct {
	mu     sync.Mutex
	repo   repository.GameRepository
	notify Notifier
	logger *zap.Logger
}

// NewService 创建对局服务；notify 可以为 nil
func NewService(repo repository.GameRepository, notify Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		notify: notify,
		logger: logger,
	}
}

// NewGame 创建对局并让创建者入座
func (s *Service) NewGame(ctx context.Context, variant, username string) (*models.Game, error) {
	v, err := models.VariantByName(variant)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidParam, variant)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	game := &models.Game{
		Variant:  v.Name,
		Status:   int(models.StatusPending),
		Revision: 1,
	}
	if err := s.repo.CreateGame(ctx, game, seedPieces(v.Name, game.Revision)); err != nil {
		return nil, err
	}
	s.logger.Info("创建对局",
		zap.Uint("game_id", game.ID),
		zap.String("variant", v.Name),
		zap.String("username", username))

	if username != "" {
		if _, err := s.join(ctx, game.ID, username, false); err != nil {
			return nil, err
		}
	}
	return game, nil
}

// Join 玩家入座；已在座或座位已满时不做任何事
func (s *Service) Join(ctx context.Context, gameID uint, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.join(ctx, gameID, username, false)
	return err
}

// AddBot 添加机器人玩家
func (s *Service) AddBot(ctx context.Context, gameID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	players, err := s.repo.FindPlayers(ctx, gameID)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("bot-%d-%d", gameID, len(players))
	player, err := s.join(ctx, gameID, name, true)
	if err != nil {
		return err
	}
	if player == nil {
		return apperrors.New(apperrors.ErrCommandRejected, "座位已满")
	}
	return nil
}

// join 调用方需持有 mu。返回新入座的玩家，未入座时返回 nil。
func (s *Service) join(ctx context.Context, gameID uint, username string, bot bool) (*models.GamePlayer, error) {
	var (
		joined   *models.GamePlayer
		revision int64
	)
	err := s.repo.Transaction(ctx, func(repo repository.GameRepository) error {
		game, err := repo.FindGame(ctx, gameID)
		if err != nil {
			return err
		}
		players, err := repo.FindPlayers(ctx, gameID)
		if err != nil {
			return err
		}
		for _, p := range players {
			if p.Username == username {
				return nil
			}
		}
		if len(players) >= maxSeats || game.Status != int(models.StatusPending) {
			return nil
		}

		game.Revision++
		seat := len(players)
		player := &models.GamePlayer{
			GameID:   gameID,
			Username: username,
			Color:    seatColor(game.Variant, seat),
			Bot:      bot,
			Seat:     seat,
			Revision: game.Revision,
		}
		if err := repo.CreatePlayer(ctx, player); err != nil {
			return err
		}
		if err := repo.BindSeat(ctx, gameID, seat, player.ID, game.Revision); err != nil {
			return err
		}

		// 国际象棋坐满即开始；卡牌游戏需要显式开始
		players = append(players, player)
		if game.Variant != models.Cards.Name && len(players) == maxSeats {
			activate(game, players)
		}
		if err := repo.UpdateGame(ctx, game); err != nil {
			return err
		}
		joined = player
		revision = game.Revision
		return nil
	})
	if err != nil || joined == nil {
		return nil, err
	}

	s.logger.Info("玩家入座",
		zap.Uint("game_id", gameID),
		zap.String("username", username),
		zap.Int("seat", joined.Seat),
		zap.Bool("bot", bot))
	s.published(gameID, revision)

	if err := s.playBots(ctx, gameID); err != nil {
		return nil, err
	}
	return joined, nil
}

// activate 开始对局，座位0先行
func activate(game *models.Game, players []*models.GamePlayer) {
	game.Status = int(models.StatusActive)
	for _, p := range players {
		if p.Seat == 0 {
			game.CurrentTurn = p.ID
		}
	}
}

// Start 开始对局（卡牌游戏）
func (s *Service) Start(ctx context.Context, gameID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var revision int64
	err := s.repo.Transaction(ctx, func(repo repository.GameRepository) error {
		game, err := repo.FindGame(ctx, gameID)
		if err != nil {
			return err
		}
		switch models.SessionStatus(game.Status) {
		case models.StatusActive:
			return nil
		case models.StatusFinished:
			return apperrors.New(apperrors.ErrGameFinished)
		}

		players, err := repo.FindPlayers(ctx, gameID)
		if err != nil {
			return err
		}
		if len(players) < maxSeats {
			return apperrors.Newf(apperrors.ErrCommandRejected, "玩家不足: %d", len(players))
		}

		game.Revision++
		activate(game, players)
		revision = game.Revision
		return repo.UpdateGame(ctx, game)
	})
	if err != nil {
		return err
	}
	if revision > 0 {
		s.logger.Info("对局开始", zap.Uint("game_id", gameID))
		s.published(gameID, revision)
	}
	return s.playBots(ctx, gameID)
}

// Move 走子。非当前回合或不在合法走法中时拒绝。
func (s *Service) Move(ctx context.Context, gameID uint, username string, pieceID uint, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.move(ctx, gameID, func(player *models.GamePlayer) error {
		if player.Username != username {
			return apperrors.Newf(apperrors.ErrNotYourTurn, "当前回合: %s", player.Username)
		}
		return nil
	}, pieceID, target); err != nil {
		return err
	}
	return s.playBots(ctx, gameID)
}

// move 调用方需持有 mu；check 校验当前回合的玩家
func (s *Service) move(ctx context.Context, gameID uint, check func(current *models.GamePlayer) error, pieceID uint, target string) error {
	var revision int64
	err := s.repo.Transaction(ctx, func(repo repository.GameRepository) error {
		game, err := repo.FindGame(ctx, gameID)
		if err != nil {
			return err
		}
		switch models.SessionStatus(game.Status) {
		case models.StatusFinished:
			return apperrors.New(apperrors.ErrGameFinished)
		case models.StatusPending:
			return apperrors.New(apperrors.ErrCommandRejected, "对局未开始")
		}

		players, err := repo.FindPlayers(ctx, gameID)
		if err != nil {
			return err
		}
		current := playerByID(players, game.CurrentTurn)
		if current == nil {
			return apperrors.New(apperrors.ErrCommandRejected, "没有当前回合的玩家")
		}
		if err := check(current); err != nil {
			return err
		}

		pieces, err := repo.FindPieces(ctx, gameID)
		if err != nil {
			return err
		}
		if !contains(LegalMoves(game.Variant, pieces, current.Seat, len(players))[pieceID], target) {
			return apperrors.Newf(apperrors.ErrCommandRejected, "非法走子: %d -> %s", pieceID, target)
		}

		if err := s.apply(ctx, repo, game, players, pieces, current, pieceID, target); err != nil {
			return err
		}
		revision = game.Revision
		return nil
	})
	if err != nil {
		return err
	}
	s.published(gameID, revision)
	return nil
}

// apply 落子、记录历史并推进回合或结束对局
func (s *Service) apply(ctx context.Context, repo repository.GameRepository, game *models.Game,
	players []*models.GamePlayer, pieces []*models.GamePiece, mover *models.GamePlayer, pieceID uint, target string) error {
	revision := game.Revision + 1

	var piece *models.GamePiece
	for _, p := range pieces {
		if p.ID == pieceID {
			piece = p
		}
	}
	for _, p := range pieces {
		if p.Position == target && p.ID != pieceID {
			p.Position = ""
			p.Revision = revision
			if err := repo.UpdatePiece(ctx, p); err != nil {
				return err
			}
		}
	}

	from := piece.Position
	piece.Position = target
	piece.Revision = revision
	if game.Variant != models.Cards.Name && models.ParseUnitKind(piece.Kind) == models.KindPawn {
		if sq, ok := parseSquare(target); ok && sq.row == lastRow(piece.Seat) {
			piece.Kind = models.KindQueen.String()
		}
	}
	if err := repo.UpdatePiece(ctx, piece); err != nil {
		return err
	}
	if err := repo.CreateHistory(ctx, &models.MoveHistory{
		GameID:   game.ID,
		PieceID:  piece.ID,
		PlayerID: mover.ID,
		From:     from,
		To:       target,
		Revision: revision,
	}); err != nil {
		return err
	}

	game.Revision = revision
	next := playerBySeat(players, (mover.Seat+1)%len(players))
	game.CurrentTurn = next.ID

	switch {
	case game.Variant == models.Cards.Name && target == string(models.WinnerSlot):
		game.Status = int(models.StatusFinished)
		if owner := playerBySeat(players, piece.Seat); owner != nil {
			game.Winner = owner.ID
		}
	case game.Variant != models.Cards.Name && len(LegalMoves(game.Variant, pieces, next.Seat, len(players))) == 0:
		// 将死或逼和
		game.Status = int(models.StatusFinished)
		if newBoard(pieces).inCheck(next.Seat) {
			game.Winner = mover.ID
		}
	}
	if game.Status == int(models.StatusFinished) {
		s.logger.Info("对局结束",
			zap.Uint("game_id", game.ID),
			zap.Uint("winner", game.Winner))
	}

	s.logger.Debug("走子",
		zap.Uint("game_id", game.ID),
		zap.String("username", mover.Username),
		zap.Uint("piece_id", piece.ID),
		zap.String("from", from),
		zap.String("to", target),
		zap.Int64("revision", revision))

	return repo.UpdateGame(ctx, game)
}

// playBots 轮到机器人时走第一步合法走法，直到轮到真人或对局结束
func (s *Service) playBots(ctx context.Context, gameID uint) error {
	for i := 0; i < maxSeats; i++ {
		game, err := s.repo.FindGame(ctx, gameID)
		if err != nil {
			return err
		}
		if game.Status != int(models.StatusActive) {
			return nil
		}
		players, err := s.repo.FindPlayers(ctx, gameID)
		if err != nil {
			return err
		}
		current := playerByID(players, game.CurrentTurn)
		if current == nil || !current.Bot {
			return nil
		}
		pieces, err := s.repo.FindPieces(ctx, gameID)
		if err != nil {
			return err
		}
		pieceID, target, ok := firstMove(LegalMoves(game.Variant, pieces, current.Seat, len(players)))
		if !ok {
			return nil
		}
		botTurn := func(p *models.GamePlayer) error {
			if p.ID != current.ID {
				return apperrors.New(apperrors.ErrNotYourTurn)
			}
			return nil
		}
		if err := s.move(ctx, gameID, botTurn, pieceID, target); err != nil {
			return err
		}
	}
	return nil
}

// Message 记录一条文字
func (s *Service) Message(ctx context.Context, gameID uint, username, text string) error {
	if text == "" {
		return apperrors.New(apperrors.ErrInvalidParam, "消息为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var revision int64
	err := s.repo.Transaction(ctx, func(repo repository.GameRepository) error {
		game, err := repo.FindGame(ctx, gameID)
		if err != nil {
			return err
		}
		player, err := repo.FindPlayerByName(ctx, gameID, username)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return apperrors.New(apperrors.ErrCommandRejected, "不在对局中")
			}
			return err
		}

		game.Revision++
		if err := repo.CreateHistory(ctx, &models.MoveHistory{
			GameID:   gameID,
			PlayerID: player.ID,
			Message:  text,
			Revision: game.Revision,
		}); err != nil {
			return err
		}
		revision = game.Revision
		return repo.UpdateGame(ctx, game)
	})
	if err != nil {
		return err
	}
	s.published(gameID, revision)
	return nil
}

// Snapshot 请求者入座后返回 since 之后的增量快照；没有新修订时返回 nil
func (s *Service) Snapshot(ctx context.Context, gameID uint, username string, since int64) (*client.GameSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if username != "" {
		if _, err := s.join(ctx, gameID, username, false); err != nil {
			return nil, err
		}
	}

	game, err := s.repo.FindGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.Revision <= since {
		return nil, nil
	}

	changes, err := s.repo.ChangesSince(ctx, gameID, since)
	if err != nil {
		return nil, err
	}
	players, err := s.repo.FindPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}

	status := game.Status
	snap := &client.GameSnapshot{
		Status:      &status,
		LastUpdated: client.Cursor(game.Revision),
		Pieces:      make([]client.Piece, 0, len(changes.Pieces)),
		Players:     make([]client.Player, 0, len(changes.Players)),
		History:     make([]client.History, 0, len(changes.History)),
		Moves:       []client.Moves{},
	}
	if game.CurrentTurn != 0 {
		turn := int64(game.CurrentTurn)
		snap.CurrentTurn = &turn
	}
	if game.Winner != 0 {
		winner := int64(game.Winner)
		snap.Winner = &winner
	}

	for _, p := range changes.Pieces {
		snap.Pieces = append(snap.Pieces, client.Piece{
			ID:       int64(p.ID),
			PlayerID: int64(p.PlayerID),
			Type:     p.Kind,
			Position: p.Position,
		})
	}
	for _, p := range changes.Players {
		snap.Players = append(snap.Players, client.Player{
			ID:       int64(p.ID),
			Color:    p.Color,
			Username: p.Username,
		})
	}
	for _, h := range changes.History {
		snap.History = append(snap.History, client.History{
			ID:      int64(h.ID),
			PieceID: int64(h.PieceID),
			From:    h.From,
			To:      h.To,
			Message: h.Message,
		})
	}

	// 走法只发给当前回合的玩家本人
	current := playerByID(players, game.CurrentTurn)
	if game.Status == int(models.StatusActive) && current != nil && current.Username == username {
		pieces, err := s.repo.FindPieces(ctx, gameID)
		if err != nil {
			return nil, err
		}
		moves := LegalMoves(game.Variant, pieces, current.Seat, len(players))
		ids := make([]uint, 0, len(moves))
		for id := range moves {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			snap.Moves = append(snap.Moves, client.Moves{ID: int64(id), Positions: moves[id]})
		}
	}
	return snap, nil
}

// Lobby variant 下等待中的对局与 username 参与的进行中对局
func (s *Service) Lobby(ctx context.Context, variant, username string) ([]models.LobbyGame, error) {
	games, err := s.repo.FindOpenGames(ctx, repository.NewPagination(1, 100))
	if err != nil {
		return nil, err
	}

	result := make([]models.LobbyGame, 0, len(games))
	for _, game := range games {
		users := make([]string, 0, len(game.Players))
		member := false
		for _, p := range game.Players {
			users = append(users, p.Username)
			member = member || p.Username == username
		}
		if game.Variant != variant {
			continue
		}
		if game.Status == int(models.StatusActive) && !member {
			continue
		}
		result = append(result, models.LobbyGame{ID: models.GameID(game.ID), Users: users})
	}
	return result, nil
}

// published 提交后推送新修订
func (s *Service) published(gameID uint, revision int64) {
	if s.notify != nil && revision > 0 {
		s.notify.NotifyGame(gameID, revision)
	}
}

func playerByID(players []*models.GamePlayer, id uint) *models.GamePlayer {
	for _, p := range players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func playerBySeat(players []*models.GamePlayer, seat int) *models.GamePlayer {
	for _, p := range players {
		if p.Seat == seat {
			return p
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// firstMove 最小棋子ID的第一个落点
func firstMove(moves map[uint][]string) (uint, string, bool) {
	var (
		best  uint
		found bool
	)
	for id, targets := range moves {
		if len(targets) == 0 {
			continue
		}
		if !found || id < best {
			best, found = id, true
		}
	}
	if !found {
		return 0, "", false
	}
	return best, moves[best][0], true
}
