package devserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/board-sync/internal/middleware"
	"github.com/wfunc/board-sync/internal/models"
	"github.com/wfunc/board-sync/internal/repository"
	ws "github.com/wfunc/board-sync/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const contextVariant = "variant"

// Router 开发服务器路由器
type Router struct {
	engine  *gin.Engine
	db      *gorm.DB
	service *Service
	handler *Handler
	log     *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(db *gorm.DB, hub *ws.Hub, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}

	// 创建Gin引擎
	engine := gin.New()

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.AccessLog(log))

	var notify Notifier
	if hub != nil {
		notify = hub
	}
	service := NewService(repository.NewGameRepository(db), notify, log)

	router := &Router{
		engine:  engine,
		db:      db,
		service: service,
		handler: NewHandler(service, hub, log),
		log:     log,
	}

	// 设置路由
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// 每个变体一个前缀：/chess/..., /cards/...
	for _, variant := range []*models.Variant{models.Chess, models.Cards} {
		player := r.engine.Group("/" + variant.Name)
		player.Use(middleware.RequirePlayer(), withVariant(variant.Name))
		{
			player.GET("/lobby/", r.handler.Lobby)
			player.POST("/newGame/", r.handler.NewGame)

			game := player.Group("/game/:id")
			{
				// 原服务器的路由两种写法都接受
				game.GET("", r.handler.Snapshot)
				game.GET("/", r.handler.Snapshot)
				game.POST("/piece/:piece/move/:position", r.handler.Move)
				game.POST("/message", r.handler.Message)
				game.POST("/addBot", r.handler.AddBot)
				game.POST("/start", r.handler.Start)
				game.GET("/ws", r.handler.Subscribe)
			}
		}
	}

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// withVariant 记录路由前缀对应的游戏变体
func withVariant(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextVariant, name)
		c.Next()
	}
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	// 检查数据库连接
	sqlDB, err := r.db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "unhealthy",
			"message": "数据库连接失败",
		})
		return
	}

	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "unhealthy",
			"message": "数据库ping失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	})
}

// Service 对局服务
func (r *Router) Service() *Service {
	return r.service
}

// GetEngine 获取Gin引擎（用于测试和 http.Server）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
