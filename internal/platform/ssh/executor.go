package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/sync/errgroup"

	"finetune-orchestrator/internal/dispatch"
)

// Executor opens key-authenticated SSH connections to the training host.
type Executor struct {
	knownHostsPath string
	dialTimeout    time.Duration
}

// NewExecutor builds an executor. An empty knownHostsPath disables host key verification.
func NewExecutor(knownHostsPath string, dialTimeout time.Duration) *Executor {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &Executor{
		knownHostsPath: knownHostsPath,
		dialTimeout:    dialTimeout,
	}
}

func (e *Executor) Connect(ctx context.Context, cred dispatch.Credential) (dispatch.RemoteSession, error) {
	signer, err := ssh.ParsePrivateKey(cred.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key failed: %w", err)
	}
	hostKeyCallback, err := e.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cred.Host, strconv.Itoa(cred.Port))
	dialer := net.Dialer{Timeout: e.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s failed: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            cred.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         e.dialTimeout,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return &Session{client: ssh.NewClient(clientConn, chans, reqs)}, nil
}

func (e *Executor) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if e.knownHostsPath == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := knownhosts.New(e.knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("load known hosts failed: %w", err)
	}
	return callback, nil
}

// Session runs each command on its own SSH channel over one connection.
type Session struct {
	client *ssh.Client
}

// Run streams stdout and stderr while the command executes. Cancelling ctx
// terminates the remote process.
func (s *Session) Run(ctx context.Context, cmd string, stdout, stderr io.Writer) (int, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("open ssh session failed: %w", err)
	}
	defer sess.Close()

	outPipe, err := sess.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("attach stdout failed: %w", err)
	}
	errPipe, err := sess.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("attach stderr failed: %w", err)
	}
	if err := sess.Start(cmd); err != nil {
		return -1, fmt.Errorf("start remote command failed: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = sess.Signal(ssh.SIGTERM)
		_ = sess.Close()
	})
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(stdout, outPipe)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(stderr, errPipe)
		return err
	})
	copyErr := g.Wait()
	waitErr := sess.Wait()

	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	if waitErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(waitErr, &exitErr) {
			return exitErr.ExitStatus(), nil
		}
		return -1, fmt.Errorf("wait remote command failed: %w", waitErr)
	}
	if copyErr != nil {
		return -1, fmt.Errorf("read remote output failed: %w", copyErr)
	}
	return 0, nil
}

// Upload writes content to remotePath by piping it into cat.
func (s *Session) Upload(ctx context.Context, remotePath string, content io.Reader) error {
	sess, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("open ssh session failed: %w", err)
	}
	defer sess.Close()

	var stderr bytes.Buffer
	sess.Stdin = content
	sess.Stderr = &stderr

	stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
	defer stop()

	if err := sess.Run("cat > " + dispatch.ShellQuote(remotePath)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("upload %s failed: %s: %w", remotePath, msg, err)
		}
		return fmt.Errorf("upload %s failed: %w", remotePath, err)
	}
	return nil
}

func (s *Session) Close() error {
	return s.client.Close()
}
