// Package chat implements the session engine: the authenticated
// handshake, the shared client registry and the broadcast fan-out that
// carries text, file announcements and call signals to every
// registered connection.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vrodas/lanchat-server/internal/auth"
	"github.com/vrodas/lanchat-server/internal/proto"
)

// Server accepts chat connections and drives one session per
// connection: handshake, registry insertion, read loop, teardown.
type Server struct {
	addr         string
	provider     auth.Provider
	registry     *Registry
	maxFrameSize int64
	log          *zerolog.Logger
}

// NewServer builds a chat server listening on addr. maxFrameSize of
// zero disables the frame size limit.
func NewServer(addr string, provider auth.Provider, registry *Registry, maxFrameSize int64, logger *zerolog.Logger) *Server {
	return &Server{
		addr:         addr,
		provider:     provider,
		registry:     registry,
		maxFrameSize: maxFrameSize,
		log:          logger,
	}
}

// Registry exposes the shared registry, mainly for tests.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Run listens and serves until ctx is cancelled. Only the initial bind
// failure is returned as an error; per-connection failures end that
// connection alone.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("chat listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info().Str("service", "chat").Str("addr", ln.Addr().String()).Msg("listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("chat accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	logger := s.log.With().
		Str("service", "chat").
		Str("conn_id", uuid.NewString()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	username, err := s.handshake(ctx, conn)
	if err != nil {
		logger.Warn().Err(err).Msg("authentication failed")
		_ = conn.Close()
		return
	}

	s.registry.Add(conn, username)
	logger.Info().Str("user", username).Msg("client connected")
	s.registry.Broadcast(proto.SystemMessage{
		Type: proto.TypeSystem,
		Text: fmt.Sprintf("%s joined the chat", username),
	})

	defer s.teardown(conn, &logger)

	s.readLoop(conn, username, &logger)
}

// handshake processes exactly one authentication attempt. A failed
// attempt leaves the connection unregistered; retries require a fresh
// connection.
func (s *Server) handshake(ctx context.Context, conn net.Conn) (string, error) {
	frame, err := proto.Receive(conn, s.maxFrameSize)
	if err != nil {
		return "", err
	}

	var req proto.AuthRequest
	if err := frame.Unmarshal(&req); err != nil {
		return "", err
	}

	if frame.Type != proto.TypeLogin && frame.Type != proto.TypeRegister {
		_ = proto.Send(conn, proto.AuthResponse{
			Type:    proto.TypeAuthResponse,
			Success: false,
			Message: "invalid auth action",
		})
		return "", fmt.Errorf("unexpected first frame %q", frame.Type)
	}

	ok, message := s.provider.Authenticate(ctx, frame.Type, req.Username, req.Password)

	if err := proto.Send(conn, proto.AuthResponse{
		Type:    proto.TypeAuthResponse,
		Success: ok,
		Message: message,
	}); err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s rejected: %s", frame.Type, message)
	}

	if err := proto.Send(conn, proto.AuthSuccess{
		Type:     proto.TypeAuthSuccess,
		Username: req.Username,
	}); err != nil {
		return "", err
	}
	return req.Username, nil
}

// readLoop decodes frames and dispatches by type until quit, peer
// close or a protocol error. Unknown types are ignored so older
// servers tolerate newer clients.
func (s *Server) readLoop(conn net.Conn, username string, logger *zerolog.Logger) {
	for {
		frame, err := proto.Receive(conn, s.maxFrameSize)
		if err != nil {
			if !errors.Is(err, proto.ErrConnectionClosed) {
				logger.Warn().Err(err).Str("user", username).Msg("read failed")
			}
			return
		}

		switch frame.Type {
		case proto.TypeMessage:
			var msg proto.ChatMessage
			if err := frame.Unmarshal(&msg); err != nil {
				logger.Warn().Err(err).Str("user", username).Msg("bad message frame")
				return
			}
			s.registry.Broadcast(proto.ChatMessage{
				Type: proto.TypeMessage,
				From: username,
				Text: msg.Text,
			})

		case proto.TypeFileAvailable:
			var ann proto.FileAvailable
			if err := frame.Unmarshal(&ann); err != nil {
				logger.Warn().Err(err).Str("user", username).Msg("bad file_available frame")
				return
			}
			s.registry.Broadcast(proto.FileAvailable{
				Type:     proto.TypeFileAvailable,
				From:     username,
				Filename: ann.Filename,
				Size:     ann.Size,
				FileID:   ann.FileID,
			})

		case proto.TypeCall:
			var call proto.CallAction
			if err := frame.Unmarshal(&call); err != nil {
				logger.Warn().Err(err).Str("user", username).Msg("bad call frame")
				return
			}
			s.registry.Broadcast(proto.CallAction{
				Type:   proto.TypeCall,
				From:   username,
				Action: call.Action,
			})

		case proto.TypeQuit:
			return

		default:
			// Forward compatibility: unknown types are not an error.
		}
	}
}

// teardown runs once per connection no matter which error path got
// here first; the registry removal is the atomic guard.
func (s *Server) teardown(conn net.Conn, logger *zerolog.Logger) {
	username, ok := s.registry.Remove(conn)
	_ = conn.Close()
	if !ok {
		return
	}

	logger.Info().Str("user", username).Msg("client disconnected")
	s.registry.Broadcast(proto.SystemMessage{
		Type: proto.TypeSystem,
		Text: fmt.Sprintf("%s left the chat", username),
	})
}
