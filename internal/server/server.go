// Package server wires the WebDAV handler into an HTTP server.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/webdav"

	"github.com/synthlace/gofile-dav/internal/config"
)

// Verbs allowed on a read-only mount. Everything else is rejected before it
// reaches the filesystem.
var readOnlyMethods = map[string]bool{
	http.MethodOptions: true,
	http.MethodGet:     true,
	http.MethodHead:    true,
	"PROPFIND":         true,
}

// Server serves WebDAV for a single filesystem.
type Server struct {
	cfg     *config.Config
	handler http.Handler
	logger  zerolog.Logger
}

// New assembles the handler chain: WebDAV handler, read-only gate, optional
// basic auth, request logging.
func New(cfg *config.Config, fs webdav.FileSystem, logger zerolog.Logger) *Server {
	dav := &webdav.Handler{
		FileSystem: fs,
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logger.Debug().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("webdav")
			}
		},
	}

	var handler http.Handler = dav
	if cfg.ReadOnly() {
		handler = readOnlyGate(handler)
	}
	if user, password, ok := cfg.BasicAuth(); ok {
		handler = basicAuth(handler, user, password)
	}
	handler = requestLog(handler, logger)

	return &Server{cfg: cfg, handler: handler, logger: logger}
}

// Run binds the listener and serves until ctx is cancelled, then shuts down
// gracefully. A bind failure is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: s.handler}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info().Str("addr", addr).Str("mode", string(s.cfg.Mode)).Msg("serving webdav")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func readOnlyGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !readOnlyMethods[r.Method] {
			http.Error(w, "read-only filesystem", http.StatusForbidden)
			return
		}
		if r.Method == http.MethodOptions {
			// Advertise only the verbs this gate lets through.
			w.Header().Set("Allow", "OPTIONS, GET, HEAD, PROPFIND")
			w.Header().Set("DAV", "1")
			w.Header().Set("MS-Author-Via", "DAV")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func basicAuth(next http.Handler, user, password string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(p), []byte(password)) == 1
		if !ok || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="gofile-dav"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLog(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
