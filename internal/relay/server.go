package relay

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fscore/internal/domain"
	"fscore/internal/instrument"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

type ackRequest struct {
	Count int `json:"count"`
}

// Server is the in-memory relay. All state is lost when the process exits.
type Server struct {
	mu        sync.Mutex
	contacts  map[domain.Identity]domain.Contact
	mailboxes map[domain.Identity][]domain.Message
	queued    int
	now       func() time.Time
	mux       *http.ServeMux
}

// NewServer returns an empty relay.
func NewServer() *Server {
	s := &Server{
		contacts:  make(map[domain.Identity]domain.Contact),
		mailboxes: make(map[domain.Identity][]domain.Message),
		now:       time.Now,
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /directory", s.handlePublish)
	s.mux.HandleFunc("GET /directory/{id}", s.handleLookup)
	s.mux.HandleFunc("POST /msg/{id}", s.handleEnqueue)
	s.mux.HandleFunc("GET /msg/{id}", s.handleFetch)
	s.mux.HandleFunc("POST /msg/{id}/ack", s.handleAck)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	instrument.RelayRequest("publish")
	var c domain.Contact
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if c.Identity == "" {
		http.Error(w, "missing identity", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.contacts[c.Identity] = c
	s.mu.Unlock()
	logrus.WithFields(logrus.Fields{
		"function": "handlePublish",
		"identity": c.Identity.String(),
	}).Info("Published contact")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	instrument.RelayRequest("lookup")
	id := domain.Identity(r.PathValue("id"))
	s.mu.Lock()
	c, ok := s.contacts[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, c)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	instrument.RelayRequest("enqueue")
	to := domain.Identity(r.PathValue("id"))
	var m domain.Message
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if m.To != to {
		http.Error(w, "recipient does not match path", http.StatusBadRequest)
		return
	}
	if m.Date.IsZero() {
		m.Date = s.now()
	}
	s.mu.Lock()
	s.mailboxes[to] = append(s.mailboxes[to], m)
	s.queued++
	instrument.RelayQueueSize(s.queued)
	s.mu.Unlock()
	logrus.WithFields(logrus.Fields{
		"function": "handleEnqueue",
		"from":     m.From.String(),
		"to":       to.String(),
		"type":     m.Type.String(),
	}).Debug("Queued message")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	instrument.RelayRequest("fetch")
	id := domain.Identity(r.PathValue("id"))
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	s.mu.Lock()
	box := s.mailboxes[id]
	if limit > 0 && limit < len(box) {
		box = box[:limit]
	}
	out := make([]domain.Message, len(box))
	copy(out, box)
	s.mu.Unlock()
	writeJSON(w, out)
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	instrument.RelayRequest("ack")
	id := domain.Identity(r.PathValue("id"))
	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Count < 0 {
		http.Error(w, "bad ack", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	box := s.mailboxes[id]
	n := min(req.Count, len(box))
	s.mailboxes[id] = box[n:]
	s.queued -= n
	instrument.RelayQueueSize(s.queued)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "writeJSON",
			"error":    err.Error(),
		}).Warn("Failed to write response")
	}
}
