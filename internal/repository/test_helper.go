package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/board-sync/internal/database"
	"github.com/wfunc/board-sync/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 创建迁移好的内存数据库
func TestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 内存库每个连接各自独立，限制为单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(database.Models()...))

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// CreateTestGame 创建带两枚棋子的对局
func CreateTestGame(t *testing.T, repo GameRepository) *models.Game {
	game := &models.Game{
		Variant:  "chess",
		Status:   int(models.StatusPending),
		Revision: 1,
	}
	pieces := []*models.GamePiece{
		{Kind: "PAWN", Seat: 0, Position: "E2", Revision: 1},
		{Kind: "PAWN", Seat: 1, Position: "E7", Revision: 1},
	}
	require.NoError(t, repo.CreateGame(context.Background(), game, pieces))
	return game
}
