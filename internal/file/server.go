// Package file implements the transfer channel: an in-memory index of
// uploaded content plus upload/download streaming over short-lived TCP
// connections. Control frames are length-prefixed JSON; the file bytes
// themselves flow raw, since their length is already agreed on.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vrodas/lanchat-server/internal/proto"
)

var (
	// ErrUploadInterrupted is returned when the peer closes before all
	// announced bytes arrived.
	ErrUploadInterrupted = errors.New("upload interrupted")
	// ErrDownloadInterrupted is returned when a download stream ends
	// before all announced bytes were delivered.
	ErrDownloadInterrupted = errors.New("download interrupted")
	// ErrNotFound is returned for a file id with no index entry.
	ErrNotFound = errors.New("file not found")
)

// Server serves one upload or download per connection.
type Server struct {
	addr         string
	dir          string
	index        *Index
	maxFrameSize int64
	log          *zerolog.Logger
}

// NewServer builds a file server storing content under dir.
func NewServer(addr, dir string, index *Index, maxFrameSize int64, logger *zerolog.Logger) *Server {
	return &Server{
		addr:         addr,
		dir:          dir,
		index:        index,
		maxFrameSize: maxFrameSize,
		log:          logger,
	}
}

// Index exposes the file index, mainly for tests.
func (s *Server) Index() *Index {
	return s.index
}

// Run creates the storage directory, listens and serves until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("file listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts transfer connections from ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	s.log.Info().Str("service", "file").Str("addr", ln.Addr().String()).Msg("listening")

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
			return fmt.Errorf("file accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	logger := s.log.With().
		Str("service", "file").
		Str("conn_id", uuid.NewString()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	frame, err := proto.Receive(conn, s.maxFrameSize)
	if err != nil {
		logger.Warn().Err(err).Msg("bad control frame")
		return
	}

	switch frame.Type {
	case proto.TypeUpload:
		var req proto.UploadRequest
		if err := frame.Unmarshal(&req); err != nil {
			logger.Warn().Err(err).Msg("bad upload frame")
			return
		}
		if err := s.handleUpload(conn, req); err != nil {
			logger.Warn().Err(err).Str("file_id", req.FileID).Msg("upload failed")
			// Best effort; the peer is usually gone already.
			_ = proto.Send(conn, proto.ErrorMessage{Type: proto.TypeError, Message: "server error"})
			return
		}
		logger.Info().Str("file_id", req.FileID).Int64("size", req.Size).Msg("upload complete")

	case proto.TypeDownload:
		var req proto.DownloadRequest
		if err := frame.Unmarshal(&req); err != nil {
			logger.Warn().Err(err).Msg("bad download frame")
			return
		}
		if err := s.handleDownload(conn, req); err != nil {
			if !errors.Is(err, ErrNotFound) {
				logger.Warn().Err(err).Str("file_id", req.FileID).Msg("download failed")
			}
			return
		}
		logger.Info().Str("file_id", req.FileID).Msg("download complete")

	default:
		_ = proto.Send(conn, proto.ErrorMessage{Type: proto.TypeError, Message: "unknown request"})
	}
}

// handleUpload reads exactly req.Size raw bytes into storage. The
// index entry is written only after the last byte is on disk; a short
// read leaves nothing indexed and removes the partial file.
func (s *Server) handleUpload(conn net.Conn, req proto.UploadRequest) error {
	if req.Size < 0 {
		return fmt.Errorf("invalid upload size %d", req.Size)
	}

	path := s.storagePath(req.FileID, req.Filename)
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := io.CopyN(dst, conn, req.Size); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return fmt.Errorf("%w: %v", ErrUploadInterrupted, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close %s: %w", path, err)
	}

	s.index.Put(Record{
		FileID:   req.FileID,
		Path:     path,
		Filename: filepath.Base(req.Filename),
		Size:     req.Size,
	})

	return proto.Send(conn, proto.UploadOK{Type: proto.TypeUploadOK})
}

// handleDownload streams an indexed file back. An unknown id gets an
// error frame and no byte stream.
func (s *Server) handleDownload(conn net.Conn, req proto.DownloadRequest) error {
	rec, ok := s.index.Get(req.FileID)
	if !ok {
		_ = proto.Send(conn, proto.ErrorMessage{Type: proto.TypeError, Message: "file not found"})
		return ErrNotFound
	}

	src, err := os.Open(rec.Path)
	if err != nil {
		_ = proto.Send(conn, proto.ErrorMessage{Type: proto.TypeError, Message: "server error"})
		return fmt.Errorf("open %s: %w", rec.Path, err)
	}
	defer src.Close()

	if err := proto.Send(conn, proto.DownloadMeta{
		Type:     proto.TypeDownloadMeta,
		Filename: rec.Filename,
		Size:     rec.Size,
	}); err != nil {
		return err
	}

	if _, err := io.CopyN(conn, src, rec.Size); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadInterrupted, err)
	}
	return nil
}

// storagePath derives the on-disk name {file_id}__{filename}. Both
// parts are reduced to their base name so a crafted id or filename
// cannot escape the storage directory.
func (s *Server) storagePath(fileID, filename string) string {
	name := fmt.Sprintf("%s__%s", fileID, filepath.Base(filename))
	return filepath.Join(s.dir, filepath.Base(name))
}
