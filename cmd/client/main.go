package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wfunc/board-sync/internal/cache"
	"github.com/wfunc/board-sync/internal/client"
	"github.com/wfunc/board-sync/internal/config"
	"github.com/wfunc/board-sync/internal/game"
	"github.com/wfunc/board-sync/internal/logger"
	"github.com/wfunc/board-sync/internal/models"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath = flag.String("config", "", "配置文件路径")
		gameID     = flag.Int64("game", 0, "加入的对局ID，0 表示新建")
		username   = flag.String("user", "", "玩家名（覆盖配置）")
	)
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()
	if *username != "" {
		cfg.Player.Username = *username
	}
	if cfg.Player.Username == "" {
		fmt.Println("缺少玩家名：使用 -user 或 player.username")
		os.Exit(1)
	}

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	err := run(cfg, models.GameID(*gameID))
	if err != nil {
		logger.Error("客户端异常退出", zap.Error(err))
	}
	logger.Cleanup()
	if err != nil {
		os.Exit(1)
	}
}

// run 打开会话并处理输入，返回前拆除全部会话
func run(cfg *config.Config, gameID models.GameID) error {
	log := logger.WithModule("client")

	variant, err := models.VariantByName(cfg.Server.Variant)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 会话状态变化时提示，由主循环打印
	statusChanged := make(chan struct{}, 1)
	view := cache.ObserverFunc(func(change cache.Change) {
		log.Debug("实体变更",
			zap.String("kind", change.Kind.String()),
			zap.Int64("id", change.ID),
			zap.String("position", string(change.Position)))
		if change.Kind == cache.ChangeSession {
			select {
			case statusChanged <- struct{}{}:
			default:
			}
		}
	})

	transport := client.New(cfg.Server.BaseURL, cfg.Player.Username, cfg.Server.RequestTimeout, logger.WithModule("http"))
	manager := game.NewSessionManager(&game.SessionConfig{
		Logger:       logger.WithModule("session"),
		Transport:    transport,
		Variant:      variant,
		Username:     cfg.Player.Username,
		PollInterval: cfg.Sync.PollInterval,
		IdleTimeout:  cfg.Sync.IdleTimeout,
		MaxSessions:  cfg.Sync.MaxSessions,
		OnSyncError: func(id models.GameID, err error) {
			log.Warn("同步失败", zap.Int64("game_id", int64(id)), zap.Error(err))
		},
		Observers: []cache.Observer{view},
	})
	defer manager.CloseAll()
	manager.StartCleanupTask(ctx, time.Minute)

	// 轮询间隔支持热更新
	config.Watch(func(newCfg *config.Config) {
		manager.SetPollInterval(newCfg.Sync.PollInterval)
	})

	var session *game.Session
	if gameID > 0 {
		session, err = manager.OpenSession(ctx, gameID)
	} else {
		session, err = manager.NewSession(ctx)
	}
	if err != nil {
		return err
	}

	if cfg.Sync.NotifyEnabled {
		notifyURL, err := transport.NotifyURL(session.ID())
		if err != nil {
			return err
		}
		notifier := client.NewNotifier(notifyURL, transport.Header(), session.Scheduler(),
			cfg.Sync.NotifyRetry, logger.WithModule("notify"))
		go notifier.Run(ctx)
	}

	fmt.Printf("已进入对局 %d（%s）。输入 help 查看命令\n", session.ID(), variant.Name)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-statusChanged:
			printStatus(session)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if !handle(ctx, manager, session, strings.TrimSpace(line)) {
				return nil
			}
		}
	}
}

// handle 执行一条命令，返回 false 表示退出
func handle(ctx context.Context, manager *game.SessionManager, session *game.Session, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch cmd {
	case "":
	case "click":
		var res game.ClickResult
		res, err = session.ClickCell(ctx, models.Position(strings.ToUpper(arg)))
		if err == nil {
			fmt.Printf("%s", res.Outcome)
			if res.Reason != nil {
				fmt.Printf(": %s", res.Reason.Message)
			}
			fmt.Println()
		}
	case "say":
		err = session.SubmitMessage(ctx, arg)
	case "bot":
		err = session.AddBot(ctx)
	case "start":
		err = session.StartGame(ctx)
	case "sync":
		err = session.Scheduler().SyncNow(ctx)
	case "board":
		printBoard(session)
	case "lobby":
		var games []models.LobbyGame
		games, err = manager.Lobby(ctx)
		for _, g := range games {
			fmt.Printf("%d\t%s\n", g.ID, strings.Join(g.Users, ", "))
		}
	case "stats":
		var stats map[string]interface{}
		stats, err = manager.GetSessionStats(session.ID())
		for k, v := range stats {
			fmt.Printf("%s: %v\n", k, v)
		}
	case "quit", "exit":
		return false
	case "help":
		fmt.Println("click <格子>  选择单位或走子")
		fmt.Println("say <文字>    发送文字")
		fmt.Println("bot | start   添加机器人 / 开始对局")
		fmt.Println("board | lobby | stats | sync | quit")
	default:
		fmt.Printf("未知命令: %s\n", cmd)
	}
	if err != nil {
		fmt.Printf("失败: %v\n", err)
	}
	return true
}

// printStatus 打印会话状态
func printStatus(session *game.Session) {
	local := session.LocalPlayer()
	session.Read(func(c *cache.Cache) {
		status, ok := c.Status()
		if !ok {
			return
		}
		switch {
		case status.IsFinished() && c.Winner() == 0:
			fmt.Println("对局结束：和棋")
		case status.IsFinished():
			winner, _ := c.Player(c.Winner())
			fmt.Printf("对局结束，胜者: %s\n", winner.Name)
		case c.CurrentTurn() != 0 && c.CurrentTurn() == local:
			fmt.Println("轮到你了")
		default:
			fmt.Printf("状态: %s\n", status)
		}
	})
}

// printBoard 打印全部格子
func printBoard(session *game.Session) {
	session.Read(func(c *cache.Cache) {
		for _, cell := range c.Cells() {
			mark := " "
			if cell.IsLegalTarget {
				mark = "*"
			}
			if !cell.Occupied() {
				fmt.Printf("%s%-7s -\n", mark, cell.Position)
				continue
			}
			u, _ := c.Unit(cell.Occupant)
			owner, _ := c.Player(u.Owner)
			fmt.Printf("%s%-7s %-8s %s\n", mark, cell.Position, u.Kind, owner.Name)
		}
	})
}
