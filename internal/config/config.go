package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConf struct {
	Env             string `mapstructure:"env"`
	Port            int    `mapstructure:"port"`
	ReadTimeoutSec  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSec int    `mapstructure:"write_timeout_seconds"`
	ShutdownSec     int    `mapstructure:"shutdown_seconds"`
}

type MongoConf struct {
	URI              string `mapstructure:"uri"`
	Database         string `mapstructure:"database"`
	UserCollection   string `mapstructure:"user_collection"`
	RoleCollection   string `mapstructure:"role_collection"`
	SchoolCollection string `mapstructure:"school_collection"`
	EnsureIndexes    bool   `mapstructure:"ensure_indexes"`
}

type AuthConf struct {
	JWTSecret        string `mapstructure:"jwt_secret"`
	AccessTTLMinutes int    `mapstructure:"access_ttl_minutes"`
	BcryptCost       int    `mapstructure:"bcrypt_cost"`
	LockoutThreshold int    `mapstructure:"lockout_threshold"`
	LockoutMinutes   int    `mapstructure:"lockout_minutes"`
}

type RedisConf struct {
	Addr           string `mapstructure:"addr"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db"`
	LoginLimit     int    `mapstructure:"login_limit"`
	LoginWindowSec int    `mapstructure:"login_window_seconds"`
}

type Config struct {
	App   AppConf   `mapstructure:"app"`
	Mongo MongoConf `mapstructure:"mongodb"`
	Auth  AuthConf  `mapstructure:"auth"`
	Redis RedisConf `mapstructure:"redis"`

	// derived
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AccessTTL       time.Duration
	LockoutWindow   time.Duration
	LoginWindow     time.Duration
}

// Load reads the YAML config at path and applies environment overrides
// (APP_MONGODB_URI, APP_AUTH_JWT_SECRET, ...). Values are fixed once loaded;
// components cache what they resolve from here.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Mongo.URI == "" {
		return nil, errors.New("mongodb.uri is required")
	}
	if cfg.Mongo.Database == "" {
		return nil, errors.New("mongodb.database is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}

	if cfg.App.Port == 0 {
		cfg.App.Port = 8080
	}
	if cfg.App.ReadTimeoutSec == 0 {
		cfg.App.ReadTimeoutSec = 15
	}
	if cfg.App.WriteTimeoutSec == 0 {
		cfg.App.WriteTimeoutSec = 15
	}
	if cfg.App.ShutdownSec == 0 {
		cfg.App.ShutdownSec = 10
	}
	if cfg.Mongo.UserCollection == "" {
		cfg.Mongo.UserCollection = "users"
	}
	if cfg.Mongo.RoleCollection == "" {
		cfg.Mongo.RoleCollection = "roles"
	}
	if cfg.Mongo.SchoolCollection == "" {
		cfg.Mongo.SchoolCollection = "schools"
	}
	if cfg.Auth.AccessTTLMinutes == 0 {
		cfg.Auth.AccessTTLMinutes = 30
	}
	if cfg.Auth.LockoutThreshold == 0 {
		cfg.Auth.LockoutThreshold = 5
	}
	if cfg.Auth.LockoutMinutes == 0 {
		cfg.Auth.LockoutMinutes = 15
	}
	if cfg.Redis.LoginLimit == 0 {
		cfg.Redis.LoginLimit = 10
	}
	if cfg.Redis.LoginWindowSec == 0 {
		cfg.Redis.LoginWindowSec = 60
	}

	cfg.ReadTimeout = time.Duration(cfg.App.ReadTimeoutSec) * time.Second
	cfg.WriteTimeout = time.Duration(cfg.App.WriteTimeoutSec) * time.Second
	cfg.ShutdownTimeout = time.Duration(cfg.App.ShutdownSec) * time.Second
	cfg.AccessTTL = time.Duration(cfg.Auth.AccessTTLMinutes) * time.Minute
	cfg.LockoutWindow = time.Duration(cfg.Auth.LockoutMinutes) * time.Minute
	cfg.LoginWindow = time.Duration(cfg.Redis.LoginWindowSec) * time.Second

	return &cfg, nil
}
