package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Player    PlayerConfig    `mapstructure:"player"`
	Sync      SyncConfig      `mapstructure:"sync"`
	DevServer DevServerConfig `mapstructure:"devserver"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig 游戏服务器（权威端）连接配置
type ServerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Variant        string        `mapstructure:"variant"` // chess, cards
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PlayerConfig 本地玩家配置
type PlayerConfig struct {
	Username string `mapstructure:"username"`
}

// SyncConfig 同步配置
type SyncConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	NotifyEnabled bool          `mapstructure:"notify_enabled"` // 启用WebSocket推送提示
	NotifyRetry   time.Duration `mapstructure:"notify_retry"`
	MaxSessions   int           `mapstructure:"max_sessions"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"` // 已结束会话的保留时长
}

// DevServerConfig 开发用游戏服务器配置
type DevServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置（仅开发服务器使用）
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()
		cfg, err = load(v, configPath)
	})

	return err
}

// Load 加载一份独立的配置（不影响全局实例）
func Load(configPath string) (*Config, error) {
	return load(viper.New(), configPath)
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// 设置环境变量前缀
	v.SetEnvPrefix("BOARD_SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// 配置文件不存在时使用默认配置
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.base_url", "http://127.0.0.1:8080/chess")
	v.SetDefault("server.variant", "chess")
	v.SetDefault("server.request_timeout", "10s")

	// 同步默认配置
	v.SetDefault("sync.poll_interval", "2s")
	v.SetDefault("sync.notify_enabled", false)
	v.SetDefault("sync.notify_retry", "5s")
	v.SetDefault("sync.max_sessions", 8)
	v.SetDefault("sync.idle_timeout", "10m")

	// 开发服务器默认配置
	v.SetDefault("devserver.host", "127.0.0.1")
	v.SetDefault("devserver.port", 8080)
	v.SetDefault("devserver.mode", "debug")
	v.SetDefault("devserver.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file::memory:?cache=shared")
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.max_open_conns", 16)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "board-sync.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url 不能为空")
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("sync.poll_interval 必须大于0: %s", c.Sync.PollInterval)
	}
	switch c.Server.Variant {
	case "chess", "cards":
	default:
		return fmt.Errorf("不支持的游戏变体: %s", c.Server.Variant)
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}

		fmt.Println("配置已重新加载:", e.Name)
	})
}

// GetDuration 获取时间间隔配置
func GetDuration(key string) time.Duration {
	return v.GetDuration(key)
}

// GetString 获取字符串配置
func GetString(key string) string {
	return v.GetString(key)
}
