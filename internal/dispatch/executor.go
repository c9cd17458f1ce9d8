package dispatch

import (
	"context"
	"io"
)

// Credential identifies the compute host and the key used to log in to it.
type Credential struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte
}

// RemoteExecutor opens authenticated sessions on a compute host.
type RemoteExecutor interface {
	Connect(ctx context.Context, cred Credential) (RemoteSession, error)
}

// RemoteSession is one authenticated connection. Run returns the remote exit code;
// a non-nil error means the command could not be run or observed at all.
type RemoteSession interface {
	Run(ctx context.Context, cmd string, stdout, stderr io.Writer) (int, error)
	Upload(ctx context.Context, remotePath string, content io.Reader) error
	Close() error
}
