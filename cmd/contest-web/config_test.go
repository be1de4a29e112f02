package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shodh/internal/backend"
	"shodh/internal/contest/joinstore"
	"shodh/internal/push"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contest-web.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, "logger:\n  level: info\n"), envMap(nil))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Addr != defaultHTTPAddr || cfg.Server.ShutdownTimeout != defaultShutdownTimeout {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Backend.BaseURL != defaultBackendURL {
		t.Fatalf("unexpected backend url %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Fallback.Submissions != backend.FallbackMock || cfg.Backend.Fallback.Leaderboard != backend.FallbackMock {
		t.Fatalf("expected mock fallback by default, got %+v", cfg.Backend.Fallback)
	}
	if cfg.JoinStore.Type != joinstore.TypeMemory || cfg.Push.Source.Type != push.SourceRelay {
		t.Fatalf("unexpected store/source %q %q", cfg.JoinStore.Type, cfg.Push.Source.Type)
	}
	if !strings.HasPrefix(cfg.Push.Source.ConsumerGroup, consumerGroupPrefix) {
		t.Fatalf("unexpected consumer group %q", cfg.Push.Source.ConsumerGroup)
	}
	if cfg.Submission.MaxCodeBytes != defaultMaxCodeBytes {
		t.Fatalf("unexpected code limit %d", cfg.Submission.MaxCodeBytes)
	}

	other, err := loadAppConfig(writeConfig(t, "logger:\n  level: info\n"), envMap(nil))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if other.Push.Source.ConsumerGroup == cfg.Push.Source.ConsumerGroup {
		t.Fatalf("each instance needs its own consumer group")
	}
}

func TestLoadAppConfigFileAndEnv(t *testing.T) {
	body := `
backend:
  baseUrl: http://judge:8080
  timeout: 3s
  fallback:
    submissions: ERROR
joinStore:
  type: memory
redis:
  addr: file-redis:6379
`
	cfg, err := loadAppConfig(writeConfig(t, body), envMap(map[string]string{
		"BACKEND_URL": "http://env-judge:9000",
		"JOIN_STORE":  "redis",
		"REDIS_ADDR":  " env-redis:6379 ",
	}))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Backend.BaseURL != "http://env-judge:9000" || cfg.Backend.Timeout.Seconds() != 3 {
		t.Fatalf("unexpected backend config %+v", cfg.Backend)
	}
	if cfg.Backend.Fallback.Submissions != backend.FallbackError || cfg.Backend.Fallback.Leaderboard != backend.FallbackMock {
		t.Fatalf("unexpected fallback %+v", cfg.Backend.Fallback)
	}
	if cfg.JoinStore.Type != joinstore.TypeRedis || cfg.Redis.Addr != "env-redis:6379" {
		t.Fatalf("unexpected join store %q at %q", cfg.JoinStore.Type, cfg.Redis.Addr)
	}
	if cfg.Redis.PoolSize == 0 {
		t.Fatalf("expected redis defaults to be applied")
	}
}

func TestLoadAppConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		env  map[string]string
		want string
	}{
		{"bad fallback", "backend:\n  fallback:\n    leaderboard: maybe\n", nil, "backend.fallback.leaderboard"},
		{"redis without addr", "joinStore:\n  type: redis\n", nil, "redis addr is required"},
		{"redis source without addr", "push:\n  source:\n    type: redis\n", nil, "redis addr is required"},
		{"mysql without dsn", "joinStore:\n  type: mysql\n", nil, "mysql dsn is required"},
		{"kafka without brokers", "push:\n  source:\n    type: kafka\n", nil, "kafka brokers are required"},
		{"cookie without secret", "joinStore:\n  type: cookie\n", nil, "secret is required"},
		{"unknown store", "", map[string]string{"JOIN_STORE": "etcd"}, "unknown join store"},
		{"unknown source", "", map[string]string{"PUSH_SOURCE": "nats"}, "unknown push source"},
		{"bad yaml", "server: [\n", nil, "parse config file failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadAppConfig(writeConfig(t, tc.body), envMap(tc.env))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}

	if _, err := loadAppConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestKafkaBrokersFromEnv(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, "push:\n  source:\n    type: kafka\n    consumerGroup: fixed\n"),
		envMap(map[string]string{"KAFKA_BROKERS": "k1:9092,k2:9092"}))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Push.Source.ConsumerGroup != "fixed" {
		t.Fatalf("unexpected kafka config %+v group %q", cfg.Kafka, cfg.Push.Source.ConsumerGroup)
	}
}
