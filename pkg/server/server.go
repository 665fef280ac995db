package server

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/aeolun/linechat/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	errorLog = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lmicroseconds)
	debugLog = log.New(io.Discard, "DEBUG: ", log.Ldate|log.Ltime|log.Lmicroseconds)
)

// Server accepts line-protocol connections and drives their lifecycle.
type Server struct {
	registry   *Registry
	listener   net.Listener
	httpServer *http.Server
	config     ServerConfig
	metrics    *Metrics
	startTime  time.Time
	shutdown   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewServer creates a new server instance.
func NewServer(config ServerConfig) *Server {
	return &Server{
		registry:  NewRegistry(),
		config:    config,
		startTime: time.Now(),
		shutdown:  make(chan struct{}),
	}
}

// SetMetrics attaches Prometheus metrics to the server and its registry.
// Called at most once, before Start.
func (s *Server) SetMetrics(metrics *Metrics) {
	s.metrics = metrics
	s.registry.SetMetrics(metrics)
}

// EnableDebugLogging turns on per-line debug output.
func (s *Server) EnableDebugLogging() {
	debugLog = log.New(os.Stderr, "DEBUG: ", log.Ldate|log.Ltime|log.Lmicroseconds)
}

// Addr returns the bound TCP address. Valid after Start.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start binds the listeners and starts the accept loop and the idle reaper.
// A bind failure is returned immediately; there is nothing useful to serve
// without the port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.TCPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	logListenBacklog(listener.Addr().String())

	if s.config.HTTPPort > 0 {
		if err := s.startHTTPServer(); err != nil {
			s.listener.Close()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	s.wg.Add(1)
	go s.reaperLoop()

	s.wg.Add(1)
	go s.acceptLoop()

	go s.monitorListenOverflows()

	return nil
}

// startHTTPServer serves the WebSocket transport plus health and metrics
// endpoints.
func (s *Server) startHTTPServer() error {
	addr := fmt.Sprintf(":%d", s.config.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{Handler: mux}
	log.Printf("HTTP server listening on %s (WebSocket at /ws)", addr)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errorLog.Printf("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the server: notify every live session, force-close
// every transport, stop accepting, and wait for the loops to drain.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.shutdown)

		if s.listener != nil {
			s.listener.Close()
			s.listener = nil
		}

		if s.httpServer != nil {
			s.httpServer.Close()
			s.httpServer = nil
		}

		// Best-effort shutdown notice; individual send failures are ignored.
		s.registry.BroadcastLine(protocol.InfoShutdown, nil)
		s.registry.CloseAll()

		s.wg.Wait()
	})
	return nil
}

// acceptLoop accepts incoming connections until shutdown. Accept errors
// other than shutdown are logged and the loop keeps going.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				errorLog.Printf("Accept error: %v", err)
				continue
			}
		}

		go s.handleConnection(conn)
	}
}

// handleConnection drives a single connection from accept to teardown.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	// Disable Nagle's algorithm for immediate sends
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	sess := s.registry.CreateSession(NewSafeConn(conn, s.config.WriteTimeout()))
	log.Printf("New connection from %s (session %d)", sess.RemoteAddr, sess.ID)

	s.readLoop(sess, conn)
}

// readLoop frames incoming bytes into newline-terminated lines and feeds
// them to the command dispatcher, strictly in arrival order. A buffer that
// grows past the line ceiling without a newline is reported and discarded;
// the connection stays open.
func (s *Server) readLoop(sess *Session, conn net.Conn) {
	maxLine := s.config.MaxLineLength
	buf := make([]byte, 0, 512)
	chunk := make([]byte, 1024)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)

			for {
				i := bytes.IndexByte(buf, '\n')
				if i < 0 {
					if len(buf) > maxLine {
						if werr := s.rejectOversized(sess); werr != nil {
							s.teardown(sess, false)
							return
						}
						buf = buf[:0]
					}
					break
				}

				line := string(buf[:i])
				buf = append(buf[:0], buf[i+1:]...)

				if i > maxLine {
					// The newline arrived in the same read that crossed
					// the ceiling; the line is still over budget.
					if werr := s.rejectOversized(sess); werr != nil {
						s.teardown(sess, false)
						return
					}
					continue
				}

				if perr := s.processLine(sess, line); perr != nil {
					s.teardown(sess, false)
					return
				}
			}
		}

		if err != nil {
			if err == io.EOF {
				log.Printf("Session %d disconnected", sess.ID)
				s.teardown(sess, true)
			} else {
				// Read errors skip the departure notice; only a clean
				// peer close announces the departure.
				errorLog.Printf("Session %d read error: %v", sess.ID, err)
				s.teardown(sess, false)
			}
			return
		}
	}
}

// rejectOversized reports a line ceiling violation to the sender.
func (s *Server) rejectOversized(sess *Session) error {
	debugLog.Printf("Session %d: input exceeded %d bytes without newline, discarding", sess.ID, s.config.MaxLineLength)
	if s.metrics != nil {
		s.metrics.RecordOversizedLine()
	}
	return sess.Conn.WriteLine(protocol.Err(protocol.ReasonMessageTooLong))
}

// processLine parses one complete line and dispatches it. Blank lines are
// ignored without an activity update; every parsed non-empty line counts as
// activity before its command runs, even if the command errors.
func (s *Server) processLine(sess *Session, raw string) error {
	cmd, ok := protocol.Parse(raw)
	if !ok {
		return nil
	}

	s.registry.TouchActivity(sess)

	if s.metrics != nil {
		s.metrics.RecordCommandReceived(cmd.Verb)
	}
	debugLog.Printf("Session %d ← %s (%d args)", sess.ID, cmd.Verb, len(cmd.Args))

	return s.dispatchCommand(sess, cmd)
}

// teardown removes the session from the registry and, when announce is set
// and a username was released, broadcasts the departure. Safe to race with
// the reaper: removal is idempotent, so only one path announces.
func (s *Server) teardown(sess *Session, announce bool) {
	name, released := s.registry.RemoveSession(sess)
	if !released {
		return
	}

	log.Printf("Session %d (%s) left", sess.ID, name)
	if announce {
		s.registry.BroadcastLine(protocol.Disconnected(name), nil)
	}
}

// reaperLoop periodically evicts idle sessions.
func (s *Server) reaperLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.reapIdleSessions()
		}
	}
}

// reapIdleSessions walks a session snapshot and evicts everything idle past
// the threshold: timeout notice, forced close, removal with a departure
// announcement if the session held a username. Eviction uses the same
// registry operations as ordinary command processing.
func (s *Server) reapIdleSessions() {
	threshold := s.config.IdleTimeout()

	for _, sess := range s.registry.SnapshotSessions() {
		if s.registry.IdleFor(sess) <= threshold {
			continue
		}

		log.Printf("Evicting idle session %d (inactive for more than %v)", sess.ID, threshold)

		// Best-effort notice before the forced close.
		sess.Conn.WriteLine(protocol.Err(protocol.ReasonIdleTimeout))
		sess.Conn.Close()

		if s.metrics != nil {
			s.metrics.RecordIdleEviction()
		}

		name, released := s.registry.RemoveSession(sess)
		if released {
			s.registry.BroadcastLine(protocol.Disconnected(name), nil)
		}
	}
}
