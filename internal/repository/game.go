package repository

import (
	"context"
	"errors"

	apperrors "github.com/wfunc/board-sync/internal/errors"
	"github.com/wfunc/board-sync/internal/models"
	"gorm.io/gorm"
)

// GameChanges 某个修订号之后变化的记录
type GameChanges struct {
	Players []*models.GamePlayer
	Pieces  []*models.GamePiece
	History []*models.MoveHistory
}

// GameRepository 对局仓储接口
type GameRepository interface {
	BaseRepository
	// Transaction 在事务中执行，fn 收到绑定事务的仓储
	Transaction(ctx context.Context, fn func(repo GameRepository) error) error

	CreateGame(ctx context.Context, game *models.Game, pieces []*models.GamePiece) error
	UpdateGame(ctx context.Context, game *models.Game) error
	FindGame(ctx context.Context, id uint) (*models.Game, error)
	FindOpenGames(ctx context.Context, p *Pagination) ([]*models.Game, error)

	CreatePlayer(ctx context.Context, player *models.GamePlayer) error
	FindPlayers(ctx context.Context, gameID uint) ([]*models.GamePlayer, error)
	FindPlayerByName(ctx context.Context, gameID uint, username string) (*models.GamePlayer, error)
	BindSeat(ctx context.Context, gameID uint, seat int, playerID uint, revision int64) error

	FindPieces(ctx context.Context, gameID uint) ([]*models.GamePiece, error)
	FindPiece(ctx context.Context, gameID, pieceID uint) (*models.GamePiece, error)
	FindPieceAt(ctx context.Context, gameID uint, position string) (*models.GamePiece, error)
	UpdatePiece(ctx context.Context, piece *models.GamePiece) error

	CreateHistory(ctx context.Context, entry *models.MoveHistory) error
	ChangesSince(ctx context.Context, gameID uint, revision int64) (*GameChanges, error)
}

// gameRepo 对局仓储实现
type gameRepo struct {
	*BaseRepo
}

// NewGameRepository 创建对局仓储
func NewGameRepository(db *gorm.DB) GameRepository {
	return &gameRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Transaction 执行事务
func (r *gameRepo) Transaction(ctx context.Context, fn func(repo GameRepository) error) error {
	return r.transaction(ctx, func(tx *gorm.DB) error {
		return fn(&gameRepo{BaseRepo: NewBaseRepo(tx)})
	})
}

// CreateGame 创建对局及初始棋子
func (r *gameRepo) CreateGame(ctx context.Context, game *models.Game, pieces []*models.GamePiece) error {
	return r.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(game).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "games")
		}
		if len(pieces) == 0 {
			return nil
		}
		for _, piece := range pieces {
			piece.GameID = game.ID
		}
		if err := tx.Create(&pieces).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "game_pieces")
		}
		return nil
	})
}

// UpdateGame 更新对局
func (r *gameRepo) UpdateGame(ctx context.Context, game *models.Game) error {
	if err := r.db.WithContext(ctx).Omit("Players").Save(game).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate, "games")
	}
	return nil
}

// FindGame 根据ID查找对局
func (r *gameRepo) FindGame(ctx context.Context, id uint) (*models.Game, error) {
	var game models.Game
	err := r.db.WithContext(ctx).First(&game, id).Error
	if err != nil {
		return nil, notFound(err, "对局不存在")
	}
	return &game, nil
}

// FindOpenGames 未结束的对局（分页，含玩家）
func (r *gameRepo) FindOpenGames(ctx context.Context, p *Pagination) ([]*models.Game, error) {
	var games []*models.Game
	query := r.db.WithContext(ctx).
		Model(&models.Game{}).
		Where("status <> ?", int(models.StatusFinished)).
		Session(&gorm.Session{})

	// 获取总数
	var total int64
	query.Count(&total)
	p.Total = total

	err := query.
		Preload("Players", func(db *gorm.DB) *gorm.DB {
			return db.Order("seat ASC")
		}).
		Scopes(Paginate(p)).
		Order("id DESC").
		Find(&games).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "games")
	}
	return games, nil
}

// CreatePlayer 添加玩家
func (r *gameRepo) CreatePlayer(ctx context.Context, player *models.GamePlayer) error {
	if err := r.db.WithContext(ctx).Create(player).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "game_players")
	}
	return nil
}

// FindPlayers 对局的全部玩家（按座位）
func (r *gameRepo) FindPlayers(ctx context.Context, gameID uint) ([]*models.GamePlayer, error) {
	var players []*models.GamePlayer
	err := r.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("seat ASC").
		Find(&players).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "game_players")
	}
	return players, nil
}

// FindPlayerByName 按用户名查找对局中的玩家
func (r *gameRepo) FindPlayerByName(ctx context.Context, gameID uint, username string) (*models.GamePlayer, error) {
	var player models.GamePlayer
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND username = ?", gameID, username).
		First(&player).Error
	if err != nil {
		return nil, notFound(err, "玩家不存在")
	}
	return &player, nil
}

// BindSeat 把座位上的棋子归属给玩家
func (r *gameRepo) BindSeat(ctx context.Context, gameID uint, seat int, playerID uint, revision int64) error {
	err := r.db.WithContext(ctx).
		Model(&models.GamePiece{}).
		Where("game_id = ? AND seat = ?", gameID, seat).
		Updates(map[string]interface{}{
			"player_id": playerID,
			"revision":  revision,
		}).Error
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate, "game_pieces")
	}
	return nil
}

// FindPieces 对局的全部棋子
func (r *gameRepo) FindPieces(ctx context.Context, gameID uint) ([]*models.GamePiece, error) {
	var pieces []*models.GamePiece
	err := r.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("id ASC").
		Find(&pieces).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "game_pieces")
	}
	return pieces, nil
}

// FindPiece 根据ID查找棋子
func (r *gameRepo) FindPiece(ctx context.Context, gameID, pieceID uint) (*models.GamePiece, error) {
	var piece models.GamePiece
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND id = ?", gameID, pieceID).
		First(&piece).Error
	if err != nil {
		return nil, notFound(err, "棋子不存在")
	}
	return &piece, nil
}

// FindPieceAt 查找格子上的棋子，空格返回 nil
func (r *gameRepo) FindPieceAt(ctx context.Context, gameID uint, position string) (*models.GamePiece, error) {
	var pieces []*models.GamePiece
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND position = ?", gameID, position).
		Order("id ASC").
		Limit(1).
		Find(&pieces).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "game_pieces")
	}
	if len(pieces) == 0 {
		return nil, nil
	}
	return pieces[0], nil
}

// UpdatePiece 更新棋子
func (r *gameRepo) UpdatePiece(ctx context.Context, piece *models.GamePiece) error {
	if err := r.db.WithContext(ctx).Save(piece).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate, "game_pieces")
	}
	return nil
}

// CreateHistory 追加历史
func (r *gameRepo) CreateHistory(ctx context.Context, entry *models.MoveHistory) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "move_histories")
	}
	return nil
}

// ChangesSince 修订号大于 revision 的玩家、棋子与历史
func (r *gameRepo) ChangesSince(ctx context.Context, gameID uint, revision int64) (*GameChanges, error) {
	changes := &GameChanges{}
	db := r.db.WithContext(ctx)

	if err := db.Where("game_id = ? AND revision > ?", gameID, revision).
		Order("seat ASC").Find(&changes.Players).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "game_players")
	}
	if err := db.Where("game_id = ? AND revision > ?", gameID, revision).
		Order("id ASC").Find(&changes.Pieces).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "game_pieces")
	}
	if err := db.Where("game_id = ? AND revision > ?", gameID, revision).
		Order("id ASC").Find(&changes.History).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "move_histories")
	}
	return changes, nil
}

// notFound 记录不存在映射为 ErrNotFound
func notFound(err error, detail string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(err, apperrors.ErrNotFound, detail)
	}
	return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, detail)
}
