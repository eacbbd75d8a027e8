package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// acquireMigrationLock 获取迁移锁
func acquireMigrationLock(dbPath string, l *zap.Logger) (*os.File, error) {
	lockPath := dbPath + ".migration.lock"

	// 尝试创建锁文件（独占模式）
	for i := 0; i < 30; i++ {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err == nil {
			l.Debug("获取迁移锁成功", zap.String("lock", lockPath))
			return lockFile, nil
		}

		// 检查锁文件是否太旧（超过5分钟）
		if info, err := os.Stat(lockPath); err == nil {
			if time.Since(info.ModTime()) > 5*time.Minute {
				l.Warn("迁移锁文件过期，尝试删除", zap.String("lock", lockPath))
				os.Remove(lockPath)
				continue
			}
		}

		l.Debug("等待迁移锁...", zap.Int("attempt", i+1))
		time.Sleep(1 * time.Second)
	}

	return nil, fmt.Errorf("无法获取迁移锁，可能有其他进程正在执行迁移")
}

// releaseMigrationLock 释放迁移锁
func releaseMigrationLock(lockFile *os.File, l *zap.Logger) {
	if lockFile == nil {
		return
	}

	lockPath := lockFile.Name()
	lockFile.Close()
	os.Remove(lockPath)
	l.Debug("释放迁移锁", zap.String("lock", lockPath))
}

// getDBPath SQLite 数据库文件路径；内存库和其他驱动返回空
func getDBPath(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "sqlite", "sqlite3":
	default:
		return ""
	}

	sqlDB, err := db.DB()
	if err != nil {
		return ""
	}
	row := sqlDB.QueryRow("PRAGMA database_list")
	var seq int
	var name, file string
	if err := row.Scan(&seq, &name, &file); err != nil || file == "" {
		return ""
	}
	if strings.Contains(file, ":memory:") {
		return ""
	}
	return file
}

// CleanupStaleLocks 清理数据库文件旁过期的锁文件
func CleanupStaleLocks(dbPath string, l *zap.Logger) {
	matches, _ := filepath.Glob(dbPath + "*.lock")
	for _, lockFile := range matches {
		if info, err := os.Stat(lockFile); err == nil {
			if time.Since(info.ModTime()) > 10*time.Minute {
				l.Info("清理过期锁文件", zap.String("file", lockFile))
				os.Remove(lockFile)
			}
		}
	}
}
