package ssh

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"finetune-orchestrator/internal/dispatch"
)

func TestConnectRejectsMalformedKey(t *testing.T) {
	e := NewExecutor("", time.Second)
	_, err := e.Connect(context.Background(), dispatch.Credential{
		Host:       "127.0.0.1",
		Port:       1,
		User:       "root",
		PrivateKey: []byte("not a key"),
	})
	if err == nil || !strings.Contains(err.Error(), "parse private key") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestHostKeyCallback(t *testing.T) {
	if _, err := NewExecutor("", 0).hostKeyCallback(); err != nil {
		t.Fatalf("empty known hosts path should be accepted: %v", err)
	}

	missing := filepath.Join(t.TempDir(), "known_hosts")
	if _, err := NewExecutor(missing, 0).hostKeyCallback(); err == nil {
		t.Fatalf("expected error for a missing known_hosts file")
	}

	if err := os.WriteFile(missing, nil, 0o600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}
	if _, err := NewExecutor(missing, 0).hostKeyCallback(); err != nil {
		t.Fatalf("empty known_hosts should load: %v", err)
	}
}

func TestNewExecutorDefaults(t *testing.T) {
	if got := NewExecutor("", 0).dialTimeout; got != 10*time.Second {
		t.Fatalf("unexpected default dial timeout: %s", got)
	}
}
