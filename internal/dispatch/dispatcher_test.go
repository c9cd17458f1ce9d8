package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"finetune-orchestrator/internal/model"
)

type fakeFiles map[string][]byte

func (f fakeFiles) Read(_ context.Context, path string) ([]byte, error) {
	content, ok := f[path]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file", path)
	}
	return content, nil
}

type fakeSession struct {
	runImpl    func(cmd string, stdout, stderr io.Writer) (int, error)
	uploadErr  error
	commands   []string
	uploads    map[string]string
	closeCalls int
}

func (s *fakeSession) Run(_ context.Context, cmd string, stdout, stderr io.Writer) (int, error) {
	s.commands = append(s.commands, cmd)
	if s.runImpl == nil {
		return 0, nil
	}
	return s.runImpl(cmd, stdout, stderr)
}

func (s *fakeSession) Upload(_ context.Context, remotePath string, content io.Reader) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	b, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	if s.uploads == nil {
		s.uploads = map[string]string{}
	}
	s.uploads[remotePath] = string(b)
	return nil
}

func (s *fakeSession) Close() error {
	s.closeCalls++
	return nil
}

type fakeExecutor struct {
	session    *fakeSession
	connectErr error
	creds      []Credential
}

func (e *fakeExecutor) Connect(_ context.Context, cred Credential) (RemoteSession, error) {
	e.creds = append(e.creds, cred)
	if e.connectErr != nil {
		return nil, e.connectErr
	}
	return e.session, nil
}

type recordingSink struct {
	mu      sync.Mutex
	entries []model.TrainingLog
}

func (s *recordingSink) Publish(_ context.Context, entry model.TrainingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func testConfig() Config {
	return Config{
		Host:         "gpu.example.internal",
		KeyPath:      "/keys/id_ed25519",
		DatasetPath:  "/tmp/datasets/combined_dataset.csv",
		TrainCommand: "python3 train.py",
		ArtifactPath: "/workspace/finetuned-model",
	}
}

func staticKey(_ string) ([]byte, error) {
	return []byte("PRIVATE KEY"), nil
}

func docs(paths ...string) []model.Document {
	out := make([]model.Document, 0, len(paths))
	for i, p := range paths {
		out = append(out, model.Document{ID: uint(i + 1), Filename: p, FilePath: p})
	}
	return out
}

func TestDispatchSuccess(t *testing.T) {
	session := &fakeSession{
		runImpl: func(cmd string, stdout, stderr io.Writer) (int, error) {
			if strings.HasPrefix(cmd, "mkdir") {
				return 0, nil
			}
			io.WriteString(stdout, "epoch 1\n")
			io.WriteString(stderr, "warning: slow\n")
			io.WriteString(stdout, "done\n")
			return 0, nil
		},
	}
	executor := &fakeExecutor{session: session}
	sink := &recordingSink{}
	files := fakeFiles{"a.csv": []byte("q,a\n1,2"), "b.csv": []byte("q,a\n3,4")}

	d := NewDispatcher(testConfig(), executor, files, sink).WithKeyReader(staticKey)
	result, err := d.Dispatch(context.Background(), "batch-1", docs("a.csv", "b.csv"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !result.Success || result.ExitCode != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.ArtifactPath != "/workspace/finetuned-model" {
		t.Fatalf("artifact path mismatch: %q", result.ArtifactPath)
	}
	if result.Output != "epoch 1\nwarning: slow\ndone\n" {
		t.Fatalf("output mismatch: %q", result.Output)
	}

	cred := executor.creds[0]
	if cred.Port != 22 || cred.User != "root" || string(cred.PrivateKey) != "PRIVATE KEY" {
		t.Fatalf("unexpected credential: %+v", cred)
	}
	if session.commands[0] != "mkdir -p '/tmp/datasets'" || session.commands[1] != "python3 train.py" {
		t.Fatalf("unexpected commands: %v", session.commands)
	}
	if got := session.uploads["/tmp/datasets/combined_dataset.csv"]; got != "q,a\n1,2\nq,a\n3,4\n" {
		t.Fatalf("unexpected staged payload: %q", got)
	}
	if session.closeCalls != 1 {
		t.Fatalf("session should be closed once, got %d", session.closeCalls)
	}
	if len(sink.entries) != 3 {
		t.Fatalf("expected 3 progress entries, got %d", len(sink.entries))
	}
	if sink.entries[1].Stream != model.StreamStderr || sink.entries[1].BatchID != "batch-1" {
		t.Fatalf("unexpected progress entry: %+v", sink.entries[1])
	}
}

func TestDispatchNonZeroExit(t *testing.T) {
	session := &fakeSession{
		runImpl: func(cmd string, stdout, _ io.Writer) (int, error) {
			if strings.HasPrefix(cmd, "mkdir") {
				return 0, nil
			}
			io.WriteString(stdout, "CUDA out of memory\n")
			return 7, nil
		},
	}
	d := NewDispatcher(testConfig(), &fakeExecutor{session: session}, fakeFiles{"a.csv": []byte("x")}, nil).
		WithKeyReader(staticKey)

	result, err := d.Dispatch(context.Background(), "batch-2", docs("a.csv"))
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *CommandError, got %v", err)
	}
	if !errors.Is(err, ErrCommand) {
		t.Fatalf("command error should wrap ErrCommand")
	}
	if err.Error() != "training failed: exit code 7" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if cmdErr.Output != "CUDA out of memory\n" {
		t.Fatalf("output not captured: %q", cmdErr.Output)
	}
	if result == nil || result.Success || result.ExitCode != 7 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if session.closeCalls != 1 {
		t.Fatalf("session should be closed on failure")
	}
}

func TestDispatchConfigurationErrors(t *testing.T) {
	for name, testcase := range map[string]struct {
		mutate  func(*Config)
		readKey func(string) ([]byte, error)
	}{
		"empty host": {
			mutate: func(c *Config) { c.Host = "" },
		},
		"empty key path": {
			mutate: func(c *Config) { c.KeyPath = " " },
		},
		"missing train command": {
			mutate: func(c *Config) { c.TrainCommand = "" },
		},
		"unreadable key": {
			readKey: func(string) ([]byte, error) { return nil, errors.New("permission denied") },
		},
		"empty key": {
			readKey: func(string) ([]byte, error) { return nil, nil },
		},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			if testcase.mutate != nil {
				testcase.mutate(&cfg)
			}
			readKey := staticKey
			if testcase.readKey != nil {
				readKey = testcase.readKey
			}
			executor := &fakeExecutor{session: &fakeSession{}}
			d := NewDispatcher(cfg, executor, fakeFiles{"a.csv": []byte("x")}, nil).WithKeyReader(readKey)

			_, err := d.Dispatch(context.Background(), "b", docs("a.csv"))
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			if len(executor.creds) != 0 {
				t.Fatalf("no connection should be attempted")
			}
		})
	}
}

func TestDispatchTransportErrors(t *testing.T) {
	files := fakeFiles{"a.csv": []byte("x")}

	t.Run("connect", func(t *testing.T) {
		executor := &fakeExecutor{connectErr: errors.New("connection refused")}
		_, err := NewDispatcher(testConfig(), executor, files, nil).WithKeyReader(staticKey).
			Dispatch(context.Background(), "b", docs("a.csv"))
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("expected ErrTransport, got %v", err)
		}
		if !strings.Contains(err.Error(), "connection refused") {
			t.Fatalf("cause missing from %q", err.Error())
		}
	})

	t.Run("upload", func(t *testing.T) {
		session := &fakeSession{uploadErr: errors.New("broken pipe")}
		_, err := NewDispatcher(testConfig(), &fakeExecutor{session: session}, files, nil).WithKeyReader(staticKey).
			Dispatch(context.Background(), "b", docs("a.csv"))
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("expected ErrTransport, got %v", err)
		}
		if session.closeCalls != 1 {
			t.Fatalf("session should be closed after upload failure")
		}
		if len(session.commands) != 1 {
			t.Fatalf("training must not run after a failed upload: %v", session.commands)
		}
	})

	t.Run("session dropped", func(t *testing.T) {
		session := &fakeSession{
			runImpl: func(cmd string, _, _ io.Writer) (int, error) {
				if strings.HasPrefix(cmd, "mkdir") {
					return 0, nil
				}
				return -1, errors.New("connection reset")
			},
		}
		_, err := NewDispatcher(testConfig(), &fakeExecutor{session: session}, files, nil).WithKeyReader(staticKey).
			Dispatch(context.Background(), "b", docs("a.csv"))
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("expected ErrTransport, got %v", err)
		}
	})
}

func TestDispatchSkipsUnreadableDocuments(t *testing.T) {
	session := &fakeSession{}
	d := NewDispatcher(testConfig(), &fakeExecutor{session: session}, fakeFiles{"b.csv": []byte("kept")}, nil).
		WithKeyReader(staticKey)

	if _, err := d.Dispatch(context.Background(), "b", docs("missing.csv", "b.csv")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := session.uploads["/tmp/datasets/combined_dataset.csv"]; got != "kept\n" {
		t.Fatalf("unexpected staged payload: %q", got)
	}
}

func TestDispatchEmptyPayload(t *testing.T) {
	executor := &fakeExecutor{session: &fakeSession{}}
	d := NewDispatcher(testConfig(), executor, fakeFiles{"blank.csv": []byte("  \n")}, nil).WithKeyReader(staticKey)

	_, err := d.Dispatch(context.Background(), "b", docs("blank.csv", "missing.csv"))
	if !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
	if len(executor.creds) != 0 {
		t.Fatalf("no connection should be attempted for an empty payload")
	}
}

func TestShellQuote(t *testing.T) {
	if got := ShellQuote("/tmp/it's here"); got != `'/tmp/it'\''s here'` {
		t.Fatalf("unexpected quoting: %s", got)
	}
}
