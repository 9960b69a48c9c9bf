package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/notifyhub/waitlist/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "test.db")
	t.Setenv("MAIL_TRANSPORT", "log")
	t.Setenv("JWT_SECRET", testSecret)
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.HTTPPort)
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.AttemptTimeout != 60*time.Second {
		t.Fatalf("expected 60s attempt timeout, got %v", cfg.AttemptTimeout)
	}
	if len(cfg.RetryBackoff) != 2 || cfg.RetryBackoff[0] != 5*time.Second || cfg.RetryBackoff[1] != 30*time.Second {
		t.Fatalf("unexpected retry backoff: %v", cfg.RetryBackoff)
	}
	if cfg.QueueBackend != config.QueueMemory {
		t.Fatalf("expected memory queue, got %s", cfg.QueueBackend)
	}
	if len(cfg.CORSAllowedOrigins) != 3 {
		t.Fatalf("expected 3 default origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DISPATCH_WORKERS", "32")
	t.Setenv("RETRY_BACKOFF", "1s,2s,4s")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workers != 32 {
		t.Fatalf("expected 32 workers, got %d", cfg.Workers)
	}
	if len(cfg.RetryBackoff) != 3 || cfg.RetryBackoff[2] != 4*time.Second {
		t.Fatalf("unexpected retry backoff: %v", cfg.RetryBackoff)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres", "DATABASE_URL": ""}, "DATABASE_URL"},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mysql"}, "STORE_DRIVER"},
		{"amqp without url", map[string]string{"QUEUE_BACKEND": "amqp"}, "AMQP_URL"},
		{"smtp without host", map[string]string{"MAIL_TRANSPORT": "smtp"}, "SMTP_HOST"},
		{"webhook without url", map[string]string{"MAIL_TRANSPORT": "webhook"}, "MAIL_WEBHOOK_URL"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "JWT_SECRET"},
		{"zero workers", map[string]string{"DISPATCH_WORKERS": "0"}, "DISPATCH_WORKERS"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", tc.wantErr, err)
			}
		})
	}
}
