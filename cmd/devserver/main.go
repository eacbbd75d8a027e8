package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/board-sync/internal/config"
	"github.com/wfunc/board-sync/internal/database"
	"github.com/wfunc/board-sync/internal/devserver"
	apperrors "github.com/wfunc/board-sync/internal/errors"
	"github.com/wfunc/board-sync/internal/logger"
	ws "github.com/wfunc/board-sync/internal/websocket"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 开发服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	hub  *ws.Hub
	http *http.Server

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Error("服务器启动失败", zap.Error(err))
		// 释放已初始化的数据库与Hub
		if shutdownErr := server.Shutdown(); shutdownErr != nil {
			logger.Error("服务器关闭失败", zap.Error(shutdownErr))
		}
		os.Exit(1)
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:    cfg,
		logger: logger.WithModule("devserver"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 初始化数据库、推送Hub并开始监听
func (s *Server) Start() error {
	s.logger.Info("正在启动开发游戏服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.DevServer.Mode),
	)

	if err := s.initDatabase(); err != nil {
		return err
	}

	gin.SetMode(s.cfg.DevServer.Mode)

	s.hub = ws.NewHub(logger.WithModule("websocket"))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.ctx)
	}()

	router := devserver.NewRouter(database.GetDB(), s.hub, s.logger)
	addr := fmt.Sprintf("%s:%d", s.cfg.DevServer.Host, s.cfg.DevServer.Port)
	s.http = &http.Server{
		Addr:    addr,
		Handler: router.GetEngine(),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
		}
	}()

	s.logger.Info("服务器启动成功",
		zap.String("http", addr),
		zap.String("chess", fmt.Sprintf("http://%s/chess", addr)),
		zap.String("cards", fmt.Sprintf("http://%s/cards", addr)),
	)
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...",
		zap.String("driver", s.cfg.Database.Driver))

	if err := database.Init(&s.cfg.Database); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(database.GetDB(), s.logger); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	if !database.IsConnected() {
		return apperrors.New(apperrors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	s.logger.Info("数据库初始化完成")
	return nil
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
		syscall.SIGQUIT, // Ctrl+\
	)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.DevServer.ShutdownTimeout)
	defer cancel()

	// 停止接收新请求；启动失败时可能尚未创建
	if s.http != nil {
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP服务关闭失败", zap.Error(err))
		}
	}

	// 取消主上下文，关闭推送连接
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return apperrors.New(apperrors.ErrTimeout, "关闭超时")
	}

	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}
	return nil
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("棋牌开发服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
