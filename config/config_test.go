package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// emptyEnv 返回一个存在但为空的 env 文件
func emptyEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "empty.env")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(emptyEnv(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := Default()
	if cfg.ListenAddr != want.ListenAddr || cfg.SendQueueSize != 64 || cfg.IdleTimeout != 5*time.Minute {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoadEnvFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	data := "LISTEN_ADDR=:9000\nNUM_ROUNDS=3\nIDLE_TIMEOUT=30s\nINSECURE=true\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv 不覆盖已有的环境变量
	t.Setenv("NUM_ROUNDS", "7")
	t.Setenv("LISTEN_ADDR", "")
	os.Unsetenv("LISTEN_ADDR")
	t.Setenv("INSECURE", "")
	os.Unsetenv("INSECURE")
	t.Setenv("IDLE_TIMEOUT", "")
	os.Unsetenv("IDLE_TIMEOUT")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.NumRounds != 7 {
		t.Errorf("NumRounds = %d, want 7 from process env", cfg.NumRounds)
	}
	if cfg.IdleTimeout != 30*time.Second || !cfg.Insecure {
		t.Errorf("IdleTimeout = %v, Insecure = %v", cfg.IdleTimeout, cfg.Insecure)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SEND_QUEUE_SIZE", "many"},
		{"SEND_QUEUE_SIZE", "0"},
		{"WRITE_TIMEOUT", "soon"},
		{"INSECURE", "maybe"},
		{"TLS_CERT_FILE", "cert.pem"},
		{"TRACE_EXPORTER", "jaeger"},
	}
	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(emptyEnv(t)); err == nil {
				t.Errorf("Load() with %s=%s succeeded", tc.key, tc.value)
			}
		})
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("Load() with a missing explicit env file succeeded")
	}

	// 默认的 .env 可以不存在
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if _, err := Load(); err != nil {
		t.Errorf("Load() without .env error = %v", err)
	}
}
