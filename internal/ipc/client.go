package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"
	"time"
)

// Call sends one command to the hunt listening on path and waits for its reply.
func Call(ctx context.Context, path string, command string, timeout time.Duration) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return Response{}, fmt.Errorf("set deadline: %w", err)
		}
	}

	if err := json.NewEncoder(conn).Encode(Request{Command: command}); err != nil {
		return Response{}, fmt.Errorf("send %s: %w", command, err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read %s reply: %w", command, err)
	}
	return resp, nil
}

// Alive reports whether a hunt answers status on path. A missing socket or one
// nobody listens on is not an error.
func Alive(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Call(ctx, path, "status", timeout)
	switch {
	case err == nil:
		return true, nil
	case NotRunning(err):
		return false, nil
	default:
		return false, fmt.Errorf("probe %s: %w", path, err)
	}
}

// NotRunning reports dial failures meaning no hunt owns the socket.
func NotRunning(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}
