package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func startRelay(t *testing.T, ttl, sweep time.Duration) string {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}

	logger := zerolog.Nop()
	relay := NewRelay(conn.LocalAddr().String(), ttl, sweep, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = relay.Serve(ctx, conn) }()

	return conn.LocalAddr().String()
}

func newPeer(t *testing.T, relayAddr string) *net.UDPConn {
	t.Helper()

	raddr, err := net.ResolveUDPAddr("udp", relayAddr)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func datagram(roomID, senderID uint32, payload []byte) []byte {
	buf := make([]byte, 8, 8+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], roomID)
	binary.BigEndian.PutUint32(buf[4:8], senderID)
	return append(buf, payload...)
}

func mustReceive(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 64*1024)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return buf[:n]
}

func mustNotReceive(t *testing.T, conn *net.UDPConn) {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 64*1024)
	if n, err := conn.Read(buf); err == nil {
		t.Fatalf("unexpected datagram: %x", buf[:n])
	}
}

func TestRoomFanOut(t *testing.T) {
	addr := startRelay(t, 0, 0)

	peerA := newPeer(t, addr)
	peerB := newPeer(t, addr)
	peerC := newPeer(t, addr)

	// A and B join room 1, C joins room 2, by sending traffic.
	if _, err := peerA.Write(datagram(1, 100, []byte("a-frame"))); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := peerB.Write(datagram(1, 200, []byte("b-frame"))); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := peerC.Write(datagram(2, 300, []byte("c-frame"))); err != nil {
		t.Fatalf("write: %v", err)
	}

	// B's frame reaches A, who was already in room 1.
	got := mustReceive(t, peerA)
	want := datagram(1, 200, []byte("b-frame"))
	if !bytes.Equal(got, want) {
		t.Fatalf("A received %x, want %x", got, want)
	}

	// A sends again: B receives the original datagram unchanged.
	sent := datagram(1, 100, []byte("media-payload"))
	if _, err := peerA.Write(sent); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := mustReceive(t, peerB); !bytes.Equal(got, sent) {
		t.Fatalf("B received %x, want %x", got, sent)
	}

	// Never echoed to the sender, never across rooms.
	mustNotReceive(t, peerA)
	mustNotReceive(t, peerC)
}

func TestShortDatagramDropped(t *testing.T) {
	addr := startRelay(t, 0, 0)

	peerA := newPeer(t, addr)
	peerB := newPeer(t, addr)

	if _, err := peerA.Write(datagram(7, 1, nil)); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Too short to carry a header; must not create membership or crash.
	if _, err := peerB.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := peerA.Write(datagram(7, 1, []byte("x"))); err != nil {
		t.Fatalf("write: %v", err)
	}
	mustNotReceive(t, peerB)
}

func TestStaleMembersEvicted(t *testing.T) {
	logger := zerolog.Nop()
	relay := NewRelay("127.0.0.1:0", 50*time.Millisecond, time.Hour, &logger)

	addrA := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40001}
	addrB := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40002}

	now := time.Now()
	relay.rooms[9] = map[string]*member{
		addrA.String(): {addr: addrA, lastSeen: now.Add(-time.Second)},
		addrB.String(): {addr: addrB, lastSeen: now},
	}

	relay.evictStale(now)

	if got := relay.roomSize(9); got != 1 {
		t.Fatalf("room size = %d, want 1", got)
	}

	// Once the last member expires, the room itself goes away.
	relay.evictStale(now.Add(time.Minute))
	if got := relay.roomSize(9); got != 0 {
		t.Fatalf("room size = %d, want 0", got)
	}
}
