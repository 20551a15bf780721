package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"olxscout/internal/shared/logger"
	"olxscout/internal/shared/types"
)

// loggingListener logs accepted connections at debug level.
type loggingListener struct {
	net.Listener
}

func (l loggingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		logger.Debug().Msgf("[WebServer] Connection accepted from: %s", conn.RemoteAddr())
	}
	return conn, err
}

// basicAuthMiddleware 检查 web user 和 password 是否已配置。
// 如果配置了，它将强制执行 HTTP Basic Authentication。
func basicAuthMiddleware(next http.Handler, user, pass string) http.Handler {
	// 如果用户名或密码未设置，则不启用认证，直接返回原始处理器
	if user == "" || pass == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized.\n"))
			return
		}
		// 认证成功，继续处理请求
		next.ServeHTTP(w, r)
	})
}

// NewMux builds the HTTP routes.
func NewMux(cfg *types.Config, controller Controller, hub *Hub) *http.ServeMux {
	var limiter *rate.Limiter
	if cfg.WebConf.SearchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.WebConf.SearchRate), max(cfg.WebConf.SearchBurst, 1))
	}
	handler := NewHandler(controller, hub, limiter)
	mux := http.NewServeMux()

	user := cfg.WebConf.User
	password := cfg.WebConf.Password
	protect := func(h http.HandlerFunc) http.Handler {
		return basicAuthMiddleware(h, user, password)
	}

	mux.Handle("/api/search", protect(handler.HandleSearch))
	mux.Handle("/api/proxies", protect(handler.HandleProxies))
	mux.Handle("/api/proxies/reload", protect(handler.HandleReloadProxies))
	mux.Handle("/api/proxies/reset", protect(handler.HandleResetProxies))

	// 市场列表是公开的
	mux.HandleFunc("/api/markets", handler.HandleMarkets)

	// --- WebSocket Endpoint (公开，无需认证) ---
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	})

	return mux
}

// Server wraps the HTTP server so the app can stop it.
type Server struct {
	srv  *http.Server
	addr net.Addr
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// StartServer 在 cfg.WebConf.Port 上启动 Web 服务。端口为 0 时返回 nil, nil。
func StartServer(wg *sync.WaitGroup, cfg *types.Config, controller Controller, hub *Hub) (*Server, error) {
	l := logger.WithComponent("WebServer")
	if cfg.WebConf.Port <= 0 {
		l.Info().Msg("Web service is disabled (port is 0 or not set).")
		return nil, nil
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.WebConf.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           NewMux(cfg, controller, hub),
			ReadHeaderTimeout: 10 * time.Second,
		},
		addr: listener.Addr(),
	}
	l.Info().Str("addr", s.addr.String()).Msgf("Web service is listening on http://%s", s.addr)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.srv.Serve(loggingListener{Listener: listener}); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Msg("Web server error.")
		}
		l.Info().Msg("Web server stopped.")
	}()
	return s, nil
}
