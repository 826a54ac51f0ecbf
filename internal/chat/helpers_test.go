package chat

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vrodas/lanchat-server/internal/proto"
)

type fakeProvider struct {
	deny bool
}

func (p fakeProvider) Authenticate(_ context.Context, action, _, _ string) (bool, string) {
	if p.deny {
		return false, "invalid credentials"
	}
	if action == "register" {
		return true, "registration successful"
	}
	return true, "login successful"
}

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// startServer binds a chat server to a loopback port and serves until
// the test ends.
func startServer(t *testing.T, provider fakeProvider) (*Server, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	logger := testLogger()
	srv := NewServer(ln.Addr().String(), provider, NewRegistry(logger), 0, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Serve(ctx, ln) }()

	return srv, ln.Addr().String()
}

type testClient struct {
	t    *testing.T
	conn net.Conn
}

// dialAndAuth connects, completes the login handshake and returns a
// client ready to exchange frames.
func dialAndAuth(t *testing.T, addr, username string) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	c := &testClient{t: t, conn: conn}

	c.send(proto.AuthRequest{Type: proto.TypeLogin, Username: username, Password: "password123"})

	var resp proto.AuthResponse
	c.recv(proto.TypeAuthResponse).mustUnmarshal(t, &resp)
	if !resp.Success {
		t.Fatalf("auth rejected: %s", resp.Message)
	}

	var success proto.AuthSuccess
	c.recv(proto.TypeAuthSuccess).mustUnmarshal(t, &success)
	if success.Username != username {
		t.Fatalf("auth_success username = %q, want %q", success.Username, username)
	}
	return c
}

func (c *testClient) send(v any) {
	c.t.Helper()
	if err := proto.Send(c.conn, v); err != nil {
		c.t.Fatalf("send: %v", err)
	}
}

// recv reads one frame and fails the test unless it has the wanted type.
func (c *testClient) recv(wantType string) *testFrame {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	frame, err := proto.Receive(c.conn, 0)
	if err != nil {
		c.t.Fatalf("receive: %v", err)
	}
	if frame.Type != wantType {
		c.t.Fatalf("frame type = %q, want %q", frame.Type, wantType)
	}
	return &testFrame{frame}
}

type testFrame struct {
	*proto.Frame
}

func (f *testFrame) mustUnmarshal(t *testing.T, v any) {
	t.Helper()
	if err := f.Unmarshal(v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

// connPair returns both ends of a loopback TCP connection.
func connPair(t *testing.T) (client, server net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server, ok := <-accepted
	if !ok {
		t.Fatalf("accept failed")
	}

	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}
