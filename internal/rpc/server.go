package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
)

// ConnHandler is notified of connection lifecycle transitions. Each
// registered handler is invoked in its own goroutine, mirroring the
// source's "each in its own lightweight task" on_connect/on_disconnect
// contract (§4.1).
type ConnHandler func(remote net.Addr)

// Server accepts connections for one ServiceCoord and dispatches incoming
// requests to a Registry. Concurrent handlers on the same connection are
// permitted; a handler is responsible for its own synchronization (§4.1).
type Server struct {
	registry *Registry

	mu          sync.Mutex
	onConnect   []ConnHandler
	onDisconnect []func(net.Addr)
	listener    net.Listener
}

// NewServer creates a Server dispatching to registry.
func NewServer(registry *Registry) *Server {
	return &Server{registry: registry}
}

// OnConnect registers a callback fired (in its own goroutine) whenever a
// new incoming connection is established.
func (s *Server) OnConnect(h ConnHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = append(s.onConnect, h)
}

// OnDisconnect registers a callback fired when a connection is torn down.
func (s *Server) OnDisconnect(h func(net.Addr)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = append(s.onDisconnect, h)
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc server listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	fc := newFrameConn(conn)
	defer fc.Close()

	s.mu.Lock()
	handlers := append([]ConnHandler(nil), s.onConnect...)
	s.mu.Unlock()
	for _, h := range handlers {
		go h(conn.RemoteAddr())
	}
	defer func() {
		s.mu.Lock()
		dh := append([]func(net.Addr){}, s.onDisconnect...)
		s.mu.Unlock()
		for _, h := range dh {
			go h(conn.RemoteAddr())
		}
	}()

	var wg sync.WaitGroup
	for {
		var req Request
		if err := fc.readJSON(&req); err != nil {
			break
		}
		wg.Add(1)
		go func(req Request) {
			defer wg.Done()
			resp := s.handle(ctx, req)
			if err := fc.writeJSON(resp); err != nil {
				log.Printf("rpc server: failed to write response %s: %v", req.ID, err)
			}
		}(req)
	}
	wg.Wait()
}

func (s *Server) handle(ctx context.Context, req Request) Response {
	handler, ok := s.registry.Lookup(req.Method)
	if !ok {
		return errResponse(req.ID, fmt.Errorf("unknown or non-callable method %q", req.Method))
	}

	result, err := s.safeInvoke(ctx, handler, req.Data)
	if err != nil {
		return errResponse(req.ID, err)
	}
	resp, encErr := okResponse(req.ID, result)
	if encErr != nil {
		log.Printf("rpc server: dropping response for %s: %v", req.ID, encErr)
		return errResponse(req.ID, encErr)
	}
	return resp
}

// safeInvoke recovers from panics in handlers (the "Programming" error
// class of §7: logged, the call fails with the exception's string form,
// the service keeps running).
func (s *Server) safeInvoke(ctx context.Context, h Handler, data json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("rpc server: handler panic: %v", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, data)
}
