// Package config 从 .env 与环境变量加载运行配置，未设置的项使用默认值。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string // TLS 游戏端口
	AdminAddr  string // 管理/监控 HTTP，空则不启动
	CertFile   string
	KeyFile    string
	Insecure   bool // 无证书时允许明文 TCP，仅用于开发

	UsersFile  string
	S3Bucket   string // 非空时用户表存 S3
	S3Key      string
	S3Region   string
	S3Endpoint string
	S3Access   string
	S3Secret   string

	JWTSecret string
	TokenTTL  time.Duration

	IdleTimeout   time.Duration
	WriteTimeout  time.Duration
	SendQueueSize int
	NumRounds     int

	LogFile  string
	LogLevel string

	TraceExporter string // none、stdout 或 file
	TraceFile     string
}

func Default() Config {
	return Config{
		ListenAddr:    ":4433",
		AdminAddr:     ":8080",
		UsersFile:     "users.json",
		S3Key:         "users.json",
		S3Region:      "us-east-1",
		TokenTTL:      time.Hour,
		IdleTimeout:   5 * time.Minute,
		WriteTimeout:  5 * time.Second,
		SendQueueSize: 64,
		NumRounds:     5,
		LogFile:       "mazearena.log",
		LogLevel:      "info",
		TraceExporter: "none",
		TraceFile:     "traces.jsonl",
	}
}

// Load 先读 env 文件，再用环境变量覆盖默认值。
// 未指定文件时读取可选的 .env；显式指定的文件必须存在。
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg := Default()
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s must be an integer: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s must be a duration: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s must be a bool: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("ADMIN_ADDR", &cfg.AdminAddr)
	str("TLS_CERT_FILE", &cfg.CertFile)
	str("TLS_KEY_FILE", &cfg.KeyFile)
	flag("INSECURE", &cfg.Insecure)

	str("USERS_FILE", &cfg.UsersFile)
	str("USERS_S3_BUCKET", &cfg.S3Bucket)
	str("USERS_S3_KEY", &cfg.S3Key)
	str("AWS_REGION", &cfg.S3Region)
	str("S3_ENDPOINT", &cfg.S3Endpoint)
	str("AWS_ACCESS_KEY_ID", &cfg.S3Access)
	str("AWS_SECRET_ACCESS_KEY", &cfg.S3Secret)

	str("JWT_SECRET", &cfg.JWTSecret)
	dur("TOKEN_TTL", &cfg.TokenTTL)

	dur("IDLE_TIMEOUT", &cfg.IdleTimeout)
	dur("WRITE_TIMEOUT", &cfg.WriteTimeout)
	num("SEND_QUEUE_SIZE", &cfg.SendQueueSize)
	num("NUM_ROUNDS", &cfg.NumRounds)

	str("LOG_FILE", &cfg.LogFile)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("TRACE_EXPORTER", &cfg.TraceExporter)
	str("TRACE_FILE", &cfg.TraceFile)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate 检查取值范围；flag 覆盖后也需再调一次
func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		errs = append(errs, errors.New("tls cert and key must be set together"))
	}
	if c.SendQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("send queue size %d must be positive", c.SendQueueSize))
	}
	if c.NumRounds <= 0 {
		errs = append(errs, fmt.Errorf("num rounds %d must be positive", c.NumRounds))
	}
	if c.IdleTimeout <= 0 || c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	switch c.TraceExporter {
	case "none", "stdout":
	case "file":
		if c.TraceFile == "" {
			errs = append(errs, errors.New("trace file is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown trace exporter %q", c.TraceExporter))
	}
	return errors.Join(errs...)
}
