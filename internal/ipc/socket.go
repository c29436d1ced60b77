// Package ipc is the unix-socket control channel between a running hunt and
// the status/stop commands.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning means another hunt owns the control socket.
var ErrAlreadyRunning = errors.New("a shinyhunt hunt is already running")

// SocketPath is $XDG_RUNTIME_DIR/shinyhunt.sock.
func SocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "shinyhunt.sock"), nil
}

// Listen claims the control socket at path. A socket left behind by a dead hunt is
// replaced; a live one yields ErrAlreadyRunning.
func Listen(ctx context.Context, path string, probeTimeout time.Duration) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err == nil {
		return secure(listener, path)
	}
	if !errors.Is(err, syscall.EADDRINUSE) {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}

	alive, err := Alive(ctx, path, probeTimeout)
	if err != nil {
		return nil, err
	}
	if alive {
		return nil, ErrAlreadyRunning
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
	}

	listener, err = net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return secure(listener, path)
}

func secure(listener net.Listener, path string) (net.Listener, error) {
	if err := os.Chmod(path, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("restrict socket %s: %w", path, err)
	}
	return listener, nil
}
