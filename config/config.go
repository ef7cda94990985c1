package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Quest    QuestConfig    `mapstructure:"quest"`
}

type ServerConfig struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
	// AdminKeyHash is a bcrypt hash of the key expected in X-Admin-Key.
	AdminKeyHash string `mapstructure:"admin_key_hash"`
	// GameServerIPs restricts the game-server routes; empty admits all.
	GameServerIPs []string `mapstructure:"game_server_ips"`
	// AdminAudit stores every mutating admin request in quest_audit_logs.
	AdminAudit bool `mapstructure:"admin_audit"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTL         time.Duration `mapstructure:"jwt_ttl"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// QuestConfig drives the progress engine and its background activities.
type QuestConfig struct {
	CatalogPath             string        `mapstructure:"catalog_path"`
	AutosaveEnabled         bool          `mapstructure:"autosave_enabled"`
	AutosaveInterval        time.Duration `mapstructure:"autosave_interval"`
	ExpirationSweepInterval time.Duration `mapstructure:"expiration_sweep_interval"`
	SurviveTick             time.Duration `mapstructure:"survive_tick"`
	// ProgressNotifyInterval throttles "quest-progress" messages per record.
	// Zero sends one for every progress change.
	ProgressNotifyInterval time.Duration `mapstructure:"progress_notify_interval"`
	PersistQueue           int           `mapstructure:"persist_queue"`
	FlushTimeout           time.Duration `mapstructure:"flush_timeout"`
	GroupCacheTTL          time.Duration `mapstructure:"group_cache_ttl"`

	Limits QuestLimits `mapstructure:"limits"`
	// PlayerGroups maps a player UUID to its primary group name.
	PlayerGroups map[string]string `mapstructure:"player_groups"`
	// Messages overrides notification templates by key.
	Messages map[string]string `mapstructure:"messages"`
	// Disabled lists quest ids that cannot be accepted.
	Disabled []string `mapstructure:"disabled"`
	// AuditLog logs every lifecycle event.
	AuditLog bool `mapstructure:"audit_log"`
}

type QuestLimits struct {
	Enabled bool           `mapstructure:"enabled"`
	Default int            `mapstructure:"default"`
	Groups  map[string]int `mapstructure:"groups"`
}

// LimitForGroup returns the slot limit configured for group, or the default.
func (l QuestLimits) LimitForGroup(group string) int {
	if n, ok := l.Groups[group]; ok {
		return n
	}
	return l.Default
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file overrides anything.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_audit", true)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/quests.db")
	v.SetDefault("database.mysql_max_open", 10)
	v.SetDefault("database.mysql_max_idle", 2)
	v.SetDefault("database.mysql_max_life", "30m")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_ttl", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("quest.catalog_path", "./config/quests.yaml")
	v.SetDefault("quest.autosave_enabled", true)
	v.SetDefault("quest.autosave_interval", "300s")
	v.SetDefault("quest.expiration_sweep_interval", "60s")
	v.SetDefault("quest.survive_tick", "1s")
	v.SetDefault("quest.progress_notify_interval", "0s")
	v.SetDefault("quest.persist_queue", 1024)
	v.SetDefault("quest.flush_timeout", "10s")
	v.SetDefault("quest.group_cache_ttl", "5m")
	v.SetDefault("quest.limits.enabled", true)
	v.SetDefault("quest.limits.default", 3)
	v.SetDefault("quest.audit_log", true)
}
