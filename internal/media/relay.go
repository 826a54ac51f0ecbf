// Package media implements the UDP video relay. Datagrams carry an
// 8-byte routing header (room id, sender id, both big-endian) followed
// by an opaque media payload that is forwarded unchanged; the relay
// never decodes it.
package media

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// headerSize is room_id (4) + sender_id (4).
const headerSize = 8

const maxDatagram = 64 * 1024

type member struct {
	addr     *net.UDPAddr
	lastSeen time.Time
}

// Relay fans UDP datagrams out to every other member of the sender's
// room. Membership is inferred from traffic: the first datagram from an
// address joins it to the room. Members idle longer than the TTL are
// evicted by a periodic sweep, as is any member a forward fails for.
type Relay struct {
	addr          string
	memberTTL     time.Duration
	sweepInterval time.Duration
	log           *zerolog.Logger

	mu    sync.Mutex
	rooms map[uint32]map[string]*member
}

// NewRelay builds a relay. A zero memberTTL disables eviction.
func NewRelay(addr string, memberTTL, sweepInterval time.Duration, logger *zerolog.Logger) *Relay {
	return &Relay{
		addr:          addr,
		memberTTL:     memberTTL,
		sweepInterval: sweepInterval,
		log:           logger,
		rooms:         make(map[uint32]map[string]*member),
	}
}

// Run binds the UDP socket and relays until ctx is cancelled. Only the
// bind failure is fatal; per-datagram problems are dropped or logged.
func (r *Relay) Run(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", r.addr)
	if err != nil {
		return fmt.Errorf("resolve media addr %s: %w", r.addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("media listen on %s: %w", r.addr, err)
	}
	return r.Serve(ctx, conn)
}

// Serve relays datagrams on conn until ctx is cancelled.
func (r *Relay) Serve(ctx context.Context, conn *net.UDPConn) error {
	r.log.Info().Str("service", "media").Str("addr", conn.LocalAddr().String()).Msg("relaying")

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	if r.memberTTL > 0 {
		go r.sweepLoop(ctx)
	}

	buf := make([]byte, maxDatagram)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("media read: %w", err)
		}
		if n < headerSize {
			continue
		}

		roomID := binary.BigEndian.Uint32(buf[0:4])
		r.forward(conn, roomID, src, buf[:n])
	}
}

// forward records the sender in its room and sends the datagram to
// every other current member. Fan-out is synchronous: the next
// datagram is not read until this one is relayed.
func (r *Relay) forward(conn *net.UDPConn, roomID uint32, src *net.UDPAddr, datagram []byte) {
	now := time.Now()
	srcKey := src.String()

	r.mu.Lock()
	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[string]*member)
		r.rooms[roomID] = room
	}
	if m, ok := room[srcKey]; ok {
		m.lastSeen = now
	} else {
		room[srcKey] = &member{addr: src, lastSeen: now}
		r.log.Debug().Uint32("room", roomID).Str("peer", srcKey).Msg("room member added")
	}

	destinations := make([]*net.UDPAddr, 0, len(room)-1)
	for key, m := range room {
		if key != srcKey {
			destinations = append(destinations, m.addr)
		}
	}
	r.mu.Unlock()

	for _, dst := range destinations {
		if _, err := conn.WriteToUDP(datagram, dst); err != nil {
			r.evict(roomID, dst.String())
			r.log.Warn().Err(err).Uint32("room", roomID).Str("peer", dst.String()).Msg("evicted unreachable member")
		}
	}
}

func (r *Relay) evict(roomID uint32, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		delete(room, key)
		if len(room) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// sweepLoop drops members that have not sent anything within the TTL,
// so historical participants do not accumulate forever.
func (r *Relay) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictStale(time.Now())
		}
	}
}

func (r *Relay) evictStale(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID, room := range r.rooms {
		for key, m := range room {
			if now.Sub(m.lastSeen) > r.memberTTL {
				delete(room, key)
				r.log.Debug().Uint32("room", roomID).Str("peer", key).Msg("room member expired")
			}
		}
		if len(room) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// roomSize reports current membership of a room.
func (r *Relay) roomSize(roomID uint32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[roomID])
}
