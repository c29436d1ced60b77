package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

const requestTimeout = 2 * time.Second

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve answers one request per connection until ctx ends or the listener closes.
func Serve(ctx context.Context, listener net.Listener, handler Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept control connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, conn, handler, logger)
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, handler Handler, logger *slog.Logger) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(requestTimeout))

	var req Request
	resp := Response{}
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		resp.Error = fmt.Sprintf("decode request: %v", err)
	} else {
		resp = handler.Handle(ctx, req)
	}

	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		logger.Debug("control reply failed", "command", req.Command, "error", err.Error())
	}
}
