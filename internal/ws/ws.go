// Package ws implements the WebSocket channel layer (spec.md §4.12): the
// outward-facing surface operators and dashboards connect to. A session
// authenticates with a bearer token (or joins anonymously in development
// mode), joins one or more topics, and from then on receives every pub/sub
// message fanned out on those topics plus replies to the commands it sends.
//
// The client-registry shape — a hub holding a set of sessions, each with
// its own buffered send channel and a read/write pump pair doing ping/pong
// keepalive — is grounded on the teacher's dashboard hub pattern, adapted
// from a single flat broadcast to StellarOps's per-topic pub/sub: instead
// of one hub-wide broadcast channel, each session subscribes directly to
// the bus topics its joined client-topics map to, and a small per-session
// forwarder goroutine relays bus messages onto the session's send channel.
package ws

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stellarops/stellarops/internal/domain"
	"github.com/stellarops/stellarops/internal/infra/metrics"
)

// Tuning constants, matching the teacher's dashboard hub values.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Authenticator validates a bearer token and returns the acting identity.
type Authenticator func(token string) (actorID string, ok bool)

// CommandSink is the subset of the command queue the channel layer drives
// on behalf of connected clients.
type CommandSink interface {
	Enqueue(ctx context.Context, cmd domain.Command) (domain.Command, error)
	Cancel(ctx context.Context, commandID string) error
}

// AlarmSink is the subset of the alarm manager the channel layer drives.
type AlarmSink interface {
	Acknowledge(ctx context.Context, id, actorID string) (domain.Alarm, error)
	Resolve(ctx context.Context, id, actorID string) (domain.Alarm, error)
}

// Registry looks up a live actor for read-only state queries from clients.
type Registry interface {
	Lookup(id string) (domain.ActorHandle, bool)
}

// Config controls session limits and authentication policy.
type Config struct {
	AllowAnonymous bool
}

// DefaultConfig denies anonymous joins; dev builds opt into AllowAnonymous.
func DefaultConfig() Config {
	return Config{AllowAnonymous: false}
}

// Hub owns every live session and the subsystem handles inbound events are
// routed to.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}

	bus      domain.Bus
	store    domain.Store
	commands CommandSink
	alarms   AlarmSink
	registry Registry

	cfg      Config
	auth     Authenticator
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// New builds a Hub. auth may be nil, in which case only anonymous joins are
// possible (AllowAnonymous must then be true or every connection is
// refused).
func New(bus domain.Bus, store domain.Store, commands CommandSink, alarms AlarmSink, registry Registry, auth Authenticator, cfg Config) *Hub {
	return &Hub{
		sessions: make(map[*Session]struct{}),
		bus:      bus,
		store:    store,
		commands: commands,
		alarms:   alarms,
		registry: registry,
		cfg:      cfg,
		auth:     auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log.New(os.Stderr, "[ws] ", log.LstdFlags),
	}
}

// Count returns the number of live sessions, for metrics.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	metrics.WSSessionsActive.Inc()
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	_, existed := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()
	if existed {
		metrics.WSSessionsActive.Dec()
	}
}

// authToken pulls a bearer token from the Authorization header, falling
// back to a ?token= query parameter for browser clients that can't set
// headers on a WebSocket upgrade request.
func authToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// ServeHTTP upgrades the connection, authenticates it, and launches the
// session's read/write pumps. It never returns until the session closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.authenticate(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade: %v", err)
		return
	}

	s := newSession(h, conn, actorID)
	h.register(s)
	s.run()
}

func (h *Hub) authenticate(r *http.Request) (string, bool) {
	token := authToken(r)
	if token == "" {
		if h.cfg.AllowAnonymous {
			return "", true
		}
		return "", false
	}
	if h.auth == nil {
		return "", h.cfg.AllowAnonymous
	}
	actorID, ok := h.auth(token)
	if !ok && h.cfg.AllowAnonymous {
		return "", true
	}
	return actorID, ok
}
