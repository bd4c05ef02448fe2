// internal/store/server.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/blockhaus/blockhaus/internal/protocol"
)

// protocolFailureMsg is the single error frame sent before closing a
// connection that broke framing or sent malformed JSON.
const protocolFailureMsg = "Protocol or internal server failure."

// request is the store wire envelope.
type request struct {
	Collection string          `json:"collection"`
	Action     string          `json:"action"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Server serves the store over framed TCP, one request/response pair at a
// time per connection.
type Server struct {
	store *Store
	log   *logrus.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewServer(st *Store, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{store: st, log: log, conns: make(map[net.Conn]struct{})}
}

// Serve accepts connections on ln until ctx is canceled, then closes the
// listener and every live connection and waits for handlers to drain.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Infof("Database server listening on %s", ln.Addr())

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-done:
		}
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.closeAll()
				wg.Wait()
				return nil
			}
			return err
		}
		s.track(conn)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.log.Debugf("DB connection from %s", remote)

	for {
		var req request
		if err := protocol.ReadMessage(conn, &req); err != nil {
			if errors.Is(err, protocol.ErrBadJSON) || errors.Is(err, protocol.ErrFrameTooLarge) {
				s.log.Warnf("Protocol error from %s: %v", remote, err)
				_ = protocol.WriteMessage(conn, protocol.Error(protocolFailureMsg))
			}
			return
		}

		resp, fatal := s.dispatch(req)
		if err := protocol.WriteMessage(conn, resp); err != nil {
			return
		}
		if fatal {
			return
		}
	}
}

// dispatch maps one request envelope onto the store. The returned bool marks
// responses after which the connection must close.
func (s *Server) dispatch(req request) (protocol.Response, bool) {
	if req.Collection == "" || req.Action == "" {
		return protocol.Error("Missing 'collection' or 'action' field."), false
	}

	data := Document{}
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &data); err != nil {
			return protocol.Error(protocolFailureMsg), true
		}
	}

	s.log.Debugf("DB request: %s %s", req.Action, req.Collection)

	switch req.Action {
	case "create":
		doc, err := s.store.Create(req.Collection, data)
		return respond(doc, err)
	case "read":
		id, ok := data["id"].(string)
		if !ok || id == "" {
			return protocol.Error("Missing 'id' for read action."), false
		}
		doc, err := s.store.Read(req.Collection, id)
		return respond(doc, err)
	case "update":
		id, ok := data["id"].(string)
		if !ok || id == "" {
			return protocol.Error("Missing 'id' for update action."), false
		}
		doc, err := s.store.Update(req.Collection, id, data)
		return respond(doc, err)
	case "delete":
		id, ok := data["id"].(string)
		if !ok || id == "" {
			return protocol.Error("Missing 'id' for delete action."), false
		}
		doc, err := s.store.Delete(req.Collection, id)
		return respond(doc, err)
	case "query":
		docs, err := s.store.Query(req.Collection, data)
		if err != nil {
			return protocol.Error(err.Error()), false
		}
		return protocol.OK(docs), false
	default:
		return protocol.Errorf("Invalid action: %s", req.Action), false
	}
}

func respond(doc Document, err error) (protocol.Response, bool) {
	if err != nil {
		return protocol.Error(err.Error()), false
	}
	return protocol.OK(doc), false
}
