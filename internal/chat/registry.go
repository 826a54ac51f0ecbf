package chat

import (
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vrodas/lanchat-server/internal/proto"
)

// Registry tracks live authenticated connections for broadcast
// delivery. One mutex covers both fan-out reads and lifecycle writes;
// a connection removed here receives no further broadcast sends.
type Registry struct {
	log *zerolog.Logger

	mu      sync.Mutex
	clients map[net.Conn]string
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		log:     logger,
		clients: make(map[net.Conn]string),
	}
}

// Add registers an authenticated connection under its identity.
func (r *Registry) Add(conn net.Conn, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[conn] = username
}

// Remove deletes a connection and reports the identity it was
// registered under. The second return value is false when the
// connection was already gone, which lets racing teardown paths run
// the departure announcement exactly once.
func (r *Registry) Remove(conn net.Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	username, ok := r.clients[conn]
	if ok {
		delete(r.clients, conn)
	}
	return username, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Broadcast encodes v once and sends it to every registered
// connection, the sender included. Connections whose send fails are
// removed and closed in the same critical section, so broadcast doubles
// as the liveness check.
func (r *Registry) Broadcast(v any) {
	buf, err := proto.Encode(v)
	if err != nil {
		r.log.Error().Err(err).Msg("encode broadcast")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var dead []net.Conn
	for conn := range r.clients {
		if _, err := conn.Write(buf); err != nil {
			dead = append(dead, conn)
		}
	}

	for _, conn := range dead {
		username := r.clients[conn]
		delete(r.clients, conn)
		_ = conn.Close()
		r.log.Warn().Str("user", username).Msg("dropped unreachable client during broadcast")
	}
}
