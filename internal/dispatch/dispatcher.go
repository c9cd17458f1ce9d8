// Package dispatch hands validated datasets to a remote compute host and runs the training command there.
package dispatch

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"finetune-orchestrator/internal/model"
)

type Config struct {
	Host         string
	Port         int
	User         string
	KeyPath      string
	DatasetPath  string
	TrainCommand string
	ArtifactPath string
}

type FileReader interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

// ProgressSink receives remote output chunks as they arrive.
type ProgressSink interface {
	Publish(ctx context.Context, entry model.TrainingLog) error
}

type Result struct {
	Success      bool   `json:"success"`
	Output       string `json:"output"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	ExitCode     int    `json:"exit_code"`
}

type Dispatcher struct {
	cfg      Config
	executor RemoteExecutor
	files    FileReader
	sink     ProgressSink
	readKey  func(path string) ([]byte, error)
}

// NewDispatcher builds a dispatcher. sink may be nil.
func NewDispatcher(cfg Config, executor RemoteExecutor, files FileReader, sink ProgressSink) *Dispatcher {
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	return &Dispatcher{
		cfg:      cfg,
		executor: executor,
		files:    files,
		sink:     sink,
		readKey:  os.ReadFile,
	}
}

// WithKeyReader replaces how the private key is loaded from KeyPath.
func (d *Dispatcher) WithKeyReader(readKey func(path string) ([]byte, error)) *Dispatcher {
	d.readKey = readKey
	return d
}

// Dispatch stages the combined content of docs on the remote host and runs the training command.
// A non-zero exit code yields both a failed Result and a *CommandError.
func (d *Dispatcher) Dispatch(ctx context.Context, batchID string, docs []model.Document) (*Result, error) {
	logger := slog.With("batchId", batchID, "host", d.cfg.Host)

	cred, err := d.credential()
	if err != nil {
		return nil, err
	}
	payload, err := d.combine(ctx, docs, logger)
	if err != nil {
		return nil, err
	}

	session, err := d.executor.Connect(ctx, cred)
	if err != nil {
		return nil, transportError("connect", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("close remote session failed", "error", err)
		}
	}()
	logger.Info("remote session established")

	code, err := session.Run(ctx, "mkdir -p "+ShellQuote(path.Dir(d.cfg.DatasetPath)), io.Discard, io.Discard)
	if err != nil {
		return nil, transportError("create staging directory", err)
	}
	if code != 0 {
		return &Result{ExitCode: code}, &CommandError{ExitCode: code}
	}

	if err := session.Upload(ctx, d.cfg.DatasetPath, bytes.NewReader(payload)); err != nil {
		return nil, transportError("stage dataset", err)
	}
	logger.Info("dataset staged", "remotePath", d.cfg.DatasetPath, "bytes", len(payload))

	out := &transcript{}
	stdout := &progressWriter{ctx: ctx, batchID: batchID, stream: model.StreamStdout, out: out, sink: d.sink, logger: logger}
	stderr := &progressWriter{ctx: ctx, batchID: batchID, stream: model.StreamStderr, out: out, sink: d.sink, logger: logger}

	code, err = session.Run(ctx, d.cfg.TrainCommand, stdout, stderr)
	if err != nil {
		return nil, transportError("run training", err)
	}
	output := out.String()
	if code != 0 {
		logger.Error("remote training failed", "exitCode", code)
		return &Result{Success: false, Output: output, ExitCode: code}, &CommandError{ExitCode: code, Output: output}
	}

	logger.Info("remote training finished", "artifactPath", d.cfg.ArtifactPath)
	return &Result{
		Success:      true,
		Output:       output,
		ArtifactPath: d.cfg.ArtifactPath,
		ExitCode:     0,
	}, nil
}

func (d *Dispatcher) credential() (Credential, error) {
	if strings.TrimSpace(d.cfg.Host) == "" {
		return Credential{}, configurationError("remote host is empty")
	}
	if strings.TrimSpace(d.cfg.KeyPath) == "" {
		return Credential{}, configurationError("private key path is empty")
	}
	if d.cfg.DatasetPath == "" || d.cfg.TrainCommand == "" {
		return Credential{}, configurationError("remote dataset path and train command are required")
	}
	key, err := d.readKey(d.cfg.KeyPath)
	if err != nil {
		return Credential{}, configurationError("read private key: %v", err)
	}
	if len(key) == 0 {
		return Credential{}, configurationError("private key %s is empty", d.cfg.KeyPath)
	}
	return Credential{
		Host:       d.cfg.Host,
		Port:       d.cfg.Port,
		User:       d.cfg.User,
		PrivateKey: key,
	}, nil
}

// combine concatenates every readable document, each followed by a newline.
func (d *Dispatcher) combine(ctx context.Context, docs []model.Document, logger *slog.Logger) ([]byte, error) {
	var buf bytes.Buffer
	for _, doc := range docs {
		content, err := d.files.Read(ctx, doc.FilePath)
		if err != nil {
			logger.Warn("skip unreadable dataset", "documentId", doc.ID, "filename", doc.Filename, "error", err)
			continue
		}
		buf.Write(content)
		buf.WriteByte('\n')
	}
	if len(bytes.TrimSpace(buf.Bytes())) == 0 {
		return nil, ErrEmptyPayload
	}
	return buf.Bytes(), nil
}

// ShellQuote quotes s for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

type transcript struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (t *transcript) write(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
}

func (t *transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

type progressWriter struct {
	ctx     context.Context
	batchID string
	stream  string
	out     *transcript
	sink    ProgressSink
	logger  *slog.Logger
}

func (w *progressWriter) Write(p []byte) (int, error) {
	chunk := string(p)
	w.out.write(p)
	w.logger.Info("remote output", "stream", w.stream, "chunk", strings.TrimRight(chunk, "\n"))
	if w.sink != nil {
		entry := model.TrainingLog{BatchID: w.batchID, Stream: w.stream, Line: chunk}
		if err := w.sink.Publish(w.ctx, entry); err != nil {
			w.logger.Warn("publish training progress failed", "error", err)
		}
	}
	return len(p), nil
}
