package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/fieldsync/internal/broadcast"
	"github.com/muurk/fieldsync/internal/config"
	"github.com/muurk/fieldsync/internal/discovery"
	"github.com/muurk/fieldsync/internal/logging"
	"github.com/muurk/fieldsync/internal/protocol"
	"github.com/muurk/fieldsync/internal/registry"
	"github.com/muurk/fieldsync/internal/session"
	"github.com/muurk/fieldsync/internal/version"
)

const (
	// shutdownTimeout bounds how long Shutdown waits for connections.
	shutdownTimeout = 10 * time.Second

	// handshakeTimeout bounds the TLS handshake and the first request line.
	handshakeTimeout = 10 * time.Second

	// keepAliveTimeout is how long an idle HTTP connection waits for its
	// next request when no idle timeout is configured.
	keepAliveTimeout = 2 * time.Minute

	// writeTimeout bounds each WebSocket frame write.
	writeTimeout = 10 * time.Second

	maxAcceptDelay = time.Second
)

// Server accepts connections, serves static content and runs a session for
// every WebSocket upgrade on the configured path.
type Server struct {
	config    *config.ServerConfig
	listener  net.Listener
	tlsConfig *tls.Config

	players *registry.Registry
	bus     *broadcast.Bus
	stats   Stats
	started time.Time

	capture    *Capture
	advertiser *discovery.Advertiser

	// ctx is cancelled on shutdown; every session runs under it.
	ctx    context.Context
	cancel context.CancelFunc

	wg           sync.WaitGroup
	mu           sync.Mutex
	activeConns  map[net.Conn]struct{}
	shutdownOnce sync.Once
}

// New creates a Server from a validated configuration. Logging is expected
// to be initialised by the caller.
func New(cfg *config.ServerConfig) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var tlsConfig *tls.Config
	if cfg.TLSEnabled() {
		var err error
		tlsConfig, err = NewTLSConfig(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	var capture *Capture
	if cfg.CaptureDir != "" {
		var err error
		capture, err = NewCapture(cfg.CaptureDir)
		if err != nil {
			return nil, err
		}
		logging.Info("Frame capture enabled", zap.String("filename", capture.Path()))
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		config:      cfg,
		tlsConfig:   tlsConfig,
		players:     registry.New(),
		bus:         broadcast.New(cfg.QueueSize),
		started:     time.Now(),
		capture:     capture,
		ctx:         ctx,
		cancel:      cancel,
		activeConns: make(map[net.Conn]struct{}),
	}, nil
}

// Listen binds the listening socket. A bind failure is the only fatal
// startup error.
func (s *Server) Listen() error {
	addr := s.config.Address()

	var (
		listener net.Listener
		err      error
	)
	if s.tlsConfig != nil {
		listener, err = tls.Listen("tcp", addr, s.tlsConfig)
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	logging.Info("Server listening for connections",
		zap.String("addr", listener.Addr().String()),
		zap.String("ws_path", s.config.WSPath),
		zap.String("static_dir", s.config.StaticDir),
		zap.Any("tls_info", GetTLSInfo(s.tlsConfig)),
	)
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start listens, advertises when enabled and serves until SIGINT or SIGTERM,
// then shuts down gracefully.
func (s *Server) Start() error {
	logging.Info("Starting fieldsync server",
		zap.String("addr", s.config.Address()),
		zap.String("version", version.Version),
		zap.String("log_level", s.config.LogLevel),
	)

	if err := s.Listen(); err != nil {
		return err
	}

	if s.config.Advertise {
		s.advertise()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve()
	}()

	select {
	case sig := <-sigChan:
		logging.Info("Shutdown signal received, stopping server...", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

// advertise registers the server over mDNS. Failure is logged, not fatal.
func (s *Server) advertise() {
	tcpAddr, ok := s.listener.Addr().(*net.TCPAddr)
	if !ok {
		return
	}

	instance := s.config.InstanceName
	if instance == "" {
		host, _ := os.Hostname()
		instance = "fieldsync on " + host
	}

	adv, err := discovery.Advertise(discovery.Announcement{
		Instance: instance,
		Port:     tcpAddr.Port,
		Path:     s.config.WSPath,
		TLS:      s.tlsConfig != nil,
		Version:  version.Version,
	})
	if err != nil {
		logging.Warn("mDNS advertisement failed", zap.Error(err))
		return
	}
	s.advertiser = adv
	logging.Info("Advertising over mDNS",
		zap.String("instance", instance),
		zap.String("service", discovery.ServiceType),
		zap.Int("port", tcpAddr.Port),
	)
}

// Serve accepts connections until the listener is closed. Accept errors
// other than closure are logged and retried with a short backoff.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}

	var delay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			logging.Error("Failed to accept connection", zap.Error(err), zap.Duration("retry_in", delay))
			time.Sleep(delay)
			continue
		}
		delay = 0

		s.stats.ConnectionsAccepted.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.activeConns[conn] = struct{}{}
		s.stats.ConnectionsActive.Add(1)
	} else {
		delete(s.activeConns, conn)
		s.stats.ConnectionsActive.Add(-1)
	}
}

// handleConnection serves HTTP requests on conn until it upgrades, asks to
// close, errors or idles out.
func (s *Server) handleConnection(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()

	s.trackConn(conn, true)
	defer func() {
		_ = conn.Close()
		s.trackConn(conn, false)
		logging.LogConnection(remoteAddr, "connection_closed")
	}()

	logging.LogConnection(remoteAddr, "connection_accepted")

	if tlsConn, ok := conn.(*tls.Conn); ok {
		_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))
		if err := tlsConn.HandshakeContext(s.ctx); err != nil {
			logging.Warn("TLS handshake failed",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
			return
		}
		_ = conn.SetDeadline(time.Time{})

		state := tlsConn.ConnectionState()
		logging.LogTLSHandshake(remoteAddr, state.Version, state.CipherSuite, state.ServerName)
	}

	br := bufio.NewReader(conn)
	idle := s.config.IdleTimeout
	if idle <= 0 {
		idle = keepAliveTimeout
	}

	for {
		if s.ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(idle))

		req, err := http.ReadRequest(br)
		if err != nil {
			if !isQuietReadError(err) {
				logging.Warn("Failed to read HTTP request",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err),
				)
				header := http.Header{}
				header.Set("Connection", "close")
				_ = writeResponse(conn, http.StatusBadRequest, header, []byte(http.StatusText(http.StatusBadRequest)+"\n"), true)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Time{})
		s.stats.HTTPRequests.Add(1)

		LogHTTPRequestDetails(req, remoteAddr)

		if req.URL.Path == s.config.WSPath {
			err := ValidateUpgradeRequest(req)
			switch {
			case err == nil:
				s.serveWebSocket(conn, br, req, remoteAddr)
				return
			case errors.Is(err, ErrNotUpgrade):
				if req.Header.Get("Upgrade") != "" {
					logging.Debug("Incomplete upgrade request, serving content",
						zap.String("remote_addr", remoteAddr),
						zap.Error(err),
					)
				}
			default:
				s.stats.HandshakeFailures.Add(1)
				logging.Warn("Invalid WebSocket upgrade request",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err),
				)
				status, werr := writeUpgradeError(conn, err)
				logging.LogHTTPResponse(remoteAddr, status, req.URL.Path)
				if werr != nil {
					logging.Debug("Failed to write upgrade rejection", zap.String("remote_addr", remoteAddr), zap.Error(werr))
				}
				return
			}
		}

		status, err := s.serveContent(conn, req)
		logging.LogHTTPResponse(remoteAddr, status, req.URL.Path)
		if err != nil {
			logging.Debug("Failed to write response",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
			return
		}

		// Discard any unread body so the next request starts cleanly.
		_, _ = io.Copy(io.Discard, req.Body)
		_ = req.Body.Close()

		if req.Close {
			return
		}
	}
}

// isQuietReadError reports read failures that simply mean the peer went
// away or idled out.
func isQuietReadError(err error) bool {
	var netErr net.Error
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		(errors.As(err, &netErr) && netErr.Timeout())
}

// serveWebSocket completes the upgrade and runs a session until it ends.
func (s *Server) serveWebSocket(conn net.Conn, br *bufio.Reader, req *http.Request, remoteAddr string) {
	ws, err := Upgrade(conn, br, req, protocol.ConnOptions{
		MaxPayload:   int64(s.config.MaxMessageSize),
		WriteTimeout: writeTimeout,
		Observer:     s.frameObserver(remoteAddr),
	})
	if err != nil {
		s.stats.HandshakeFailures.Add(1)
		logging.Error("Failed to complete WebSocket upgrade",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		return
	}
	logging.LogHTTPResponse(remoteAddr, http.StatusSwitchingProtocols, req.URL.Path)

	sub := s.bus.Subscribe()
	sess := session.New(ws, s.players, s.bus, sub, session.Options{
		IdleTimeout: s.config.IdleTimeout,
	})

	s.stats.SessionsStarted.Add(1)
	s.stats.SessionsActive.Add(1)
	defer s.stats.SessionsActive.Add(-1)

	logging.LogSessionEvent(remoteAddr, "", "started")
	if err := sess.Run(s.ctx); err != nil {
		s.stats.SessionErrors.Add(1)
	}
}

// frameObserver logs every frame at debug level and, when capture is
// enabled, records it.
func (s *Server) frameObserver(remoteAddr string) protocol.FrameObserver {
	var record protocol.FrameObserver
	if s.capture != nil {
		record = s.capture.Observer(remoteAddr)
	}
	return func(direction string, opcode byte, payload []byte) {
		logging.LogWebSocketMessage(remoteAddr, direction, opcode, payload)
		if record != nil {
			record(direction, opcode, payload)
		}
	}
}

// Shutdown stops accepting, ends every session with a going-away close and
// waits for connections to finish, at most until ctx is done or ten seconds
// pass. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdown(ctx)
	})
	return nil
}

func (s *Server) shutdown(ctx context.Context) {
	logging.Info("Shutting down server...")

	s.advertiser.Shutdown()

	// Sessions observe this and close their own connections.
	s.cancel()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logging.Error("Error closing listener", zap.Error(err))
		}
	}

	// Wake connections waiting for their next HTTP request.
	s.mu.Lock()
	for conn := range s.activeConns {
		_ = conn.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
		s.closeAll()
	case <-timer.C:
		logging.Warn("Shutdown timeout after 10 seconds, forcing close")
		s.closeAll()
	}

	if s.capture != nil {
		if err := s.capture.Close(); err != nil {
			logging.Error("Failed to close capture file", zap.Error(err))
		}
	}

	logging.Sync()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.activeConns {
		logging.Info("Closing active connection", zap.String("remote_addr", conn.RemoteAddr().String()))
		_ = conn.Close()
	}
}

// GetActiveConnections returns the number of active connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}
