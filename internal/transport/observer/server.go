// Package observer serves a read-only websocket feed of generation
// progress to local viewers.
package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"terraforge.ai/internal/observerproto"
	"terraforge.ai/internal/terrain/pipeline"
)

const clientBuffer = 64

type client struct {
	out chan []byte
}

// Server fans pipeline progress out to every connected observer. It
// implements pipeline.Reporter; Report never blocks the pipeline.
type Server struct {
	log   *log.Logger
	runID string
	seed  int64

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu      sync.Mutex
	clients map[uint64]*client
	last    *pipeline.Progress
	done    *observerproto.DoneMsg
}

func NewServer(runID string, seed int64, logger *log.Logger) *Server {
	return &Server{
		log:     logger,
		runID:   runID,
		seed:    seed,
		clients: map[uint64]*client{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only, see isLoopbackRemote
		},
	}
}

// Report broadcasts one checkpoint.
func (s *Server) Report(p pipeline.Progress) {
	b, err := json.Marshal(observerproto.ProgressMsg{
		Type:            observerproto.TypeProgress,
		ProtocolVersion: observerproto.Version,
		RunID:           s.runID,
		Progress:        p,
	})
	if err != nil {
		s.printf("observer: marshal progress: %v", err)
		return
	}
	s.mu.Lock()
	s.last = &p
	s.broadcastLocked(b)
	s.mu.Unlock()
}

// Finish broadcasts the end of the run. res may be nil when the run failed.
func (s *Server) Finish(status string, res *pipeline.Result, runErr error) {
	msg := observerproto.DoneMsg{
		Type:            observerproto.TypeDone,
		ProtocolVersion: observerproto.Version,
		RunID:           s.runID,
		Status:          status,
	}
	if runErr != nil {
		msg.Error = runErr.Error()
	}
	if res != nil {
		msg.Placements = res.Placements
		msg.HeightsDigest = res.Digests.Heights
	}
	b, err := json.Marshal(msg)
	if err != nil {
		s.printf("observer: marshal done: %v", err)
		return
	}
	s.mu.Lock()
	s.done = &msg
	s.broadcastLocked(b)
	s.mu.Unlock()
}

// Dropped counts messages discarded because an observer fell behind.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) broadcastLocked(b []byte) {
	for _, c := range s.clients {
		select {
		case c.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Server) status() observerproto.StatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := observerproto.StatusResponse{
		ProtocolVersion: observerproto.Version,
		RunID:           s.runID,
		Seed:            s.seed,
		Done:            s.done,
		Observers:       len(s.clients),
	}
	if s.last != nil {
		p := *s.last
		resp.Last = &p
	}
	return resp
}

// Mux routes GET /progress and the /ws feed.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/progress", s.StatusHandler())
	mux.HandleFunc("/ws", s.WSHandler())
	return mux
}

func (s *Server) StatusHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.status())
	}
}

// register adds a client and queues the greeting plus the latest state so
// late joiners see where the run is.
func (s *Server) register() (uint64, *client) {
	id := s.nextID.Add(1)
	c := &client{out: make(chan []byte, clientBuffer)}

	hello, _ := json.Marshal(observerproto.HelloMsg{
		Type:            observerproto.TypeHello,
		ProtocolVersion: observerproto.Version,
		RunID:           s.runID,
		Seed:            s.seed,
		TotalStages:     pipeline.NumStages,
	})
	c.out <- hello

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != nil {
		if b, err := json.Marshal(observerproto.ProgressMsg{
			Type:            observerproto.TypeProgress,
			ProtocolVersion: observerproto.Version,
			RunID:           s.runID,
			Progress:        *s.last,
		}); err == nil {
			c.out <- b
		}
	}
	if s.done != nil {
		if b, err := json.Marshal(s.done); err == nil {
			c.out <- b
		}
	}
	s.clients[id] = c
	return id, c
}

func (s *Server) unregister(id uint64) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, c := s.register()
		defer s.unregister(id)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// The feed is one-way; reads only detect disconnects and validate
		// an optional SUBSCRIBE.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var sub observerproto.SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				continue
			}
			if sub.Type == "SUBSCRIBE" && sub.ProtocolVersion != observerproto.Version {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "protocol version mismatch"), time.Now().Add(time.Second))
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
