package database

import (
	"fmt"

	apperrors "github.com/wfunc/board-sync/internal/errors"
	"github.com/wfunc/board-sync/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models 需要迁移的模型
func Models() []interface{} {
	return []interface{}{
		&models.Game{},
		&models.GamePlayer{},
		&models.GamePiece{},
		&models.MoveHistory{},
	}
}

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB, l *zap.Logger) error {
	if db == nil {
		return apperrors.New(apperrors.ErrDatabaseConnect, "数据库未初始化")
	}
	if l == nil {
		l = zap.NewNop()
	}

	// 获取迁移锁，避免多个进程同时迁移同一个SQLite文件
	if dbPath := getDBPath(db); dbPath != "" {
		CleanupStaleLocks(dbPath, l)
		lockFile, err := acquireMigrationLock(dbPath, l)
		if err != nil {
			l.Error("无法获取迁移锁", zap.Error(err))
			return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "获取迁移锁失败")
		}
		defer releaseMigrationLock(lockFile, l)
	}

	l.Info("开始数据库迁移...")

	for _, model := range Models() {
		if err := db.AutoMigrate(model); err != nil {
			l.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, fmt.Sprintf("%T", model))
		}
		l.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	if err := createIndexes(db, l); err != nil {
		return err
	}

	l.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建增量查询用的联合索引
func createIndexes(db *gorm.DB, l *zap.Logger) error {
	indexes := map[string]string{
		"idx_game_players_game_revision":   "CREATE INDEX IF NOT EXISTS idx_game_players_game_revision ON game_players(game_id, revision)",
		"idx_game_pieces_game_revision":    "CREATE INDEX IF NOT EXISTS idx_game_pieces_game_revision ON game_pieces(game_id, revision)",
		"idx_move_histories_game_revision": "CREATE INDEX IF NOT EXISTS idx_move_histories_game_revision ON move_histories(game_id, revision)",
	}

	// MySQL 不支持 IF NOT EXISTS，交给 gorm 的单列索引
	if db.Dialector.Name() == "mysql" {
		return nil
	}

	for name, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			l.Warn("创建索引失败", zap.String("index", name), zap.Error(err))
		}
	}
	return nil
}
