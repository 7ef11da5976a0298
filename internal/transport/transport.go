// Package transport is the bytes-in/bytes-out TCP listener that feeds the
// parser and writes back whatever the response composer renders. It
// exists only to give a runnable entrypoint to the core in package
// httpsign/parse/keystore/eip2335/blsfacade, none of which depends on it.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/google/uuid"

	"github.com/Bidon15/bls-remote-signer/internal/config"
	"github.com/Bidon15/bls-remote-signer/internal/httpsign"
	"github.com/Bidon15/bls-remote-signer/internal/httpsign/parse"
)

// Server accepts connections and runs each one to completion before
// accepting the next: the keystore is touched by exactly one goroutine,
// ever.
type Server struct {
	Listener net.Listener
	Deps     httpsign.Deps
	Config   config.Config
	Logger   *slog.Logger
}

// Serve runs the accept loop until ctx is canceled or the listener
// returns a permanent error. It never spawns a goroutine per connection:
// that would reintroduce concurrent access to the keystore.
func (s *Server) Serve(ctx context.Context) error {
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && !netErr.Timeout() {
				return err
			}
			continue
		}

		s.handleConn(conn)

		if ctx.Err() != nil {
			return nil
		}
	}
}

// handleConn reads one request to completion, dispatches it, writes the
// response, and closes the connection. No keep-alive is attempted.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	requestID := uuid.New()
	cfg := s.Config.WithDefaults()
	buf := make([]byte, 0, cfg.MaxRequestBytes)
	chunk := make([]byte, 4096)

	for {
		req, status, err := parse.Parse(buf, cfg)
		if err != nil {
			s.logError(requestID, "parse error", err)
			return
		}

		switch status {
		case parse.Complete:
			resp := httpsign.Dispatch(req, buf, s.Deps)
			if _, werr := conn.Write(resp); werr != nil {
				s.logError(requestID, "write response", werr)
			}
			return
		case parse.Invalid:
			resp := httpsign.Compose(400, httpsign.ContentTypeJSON, nil)
			_, _ = conn.Write(resp)
			return
		case parse.Incomplete:
			if len(buf) >= cfg.MaxRequestBytes {
				resp := httpsign.Compose(400, httpsign.ContentTypeJSON, nil)
				_, _ = conn.Write(resp)
				return
			}
			n, rerr := conn.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
			}
			if rerr != nil {
				return
			}
		}
	}
}

func (s *Server) logError(requestID uuid.UUID, msg string, err error) {
	if s.Logger == nil {
		return
	}
	s.Logger.Error(msg, slog.String("request_id", requestID.String()), slog.String("error", err.Error()))
}
