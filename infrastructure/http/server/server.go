package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"market-chat/auth"
	"market-chat/contract"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

var _ contract.Worker = (*Server)(nil)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// Server exposes the REST history surface, the websocket gateway and the debug stats.
type Server struct {
	log        *slog.Logger
	httpServer *http.Server
}

func NewRouter(log *slog.Logger, tokens *auth.TokenManager, chat *ChatHandler, ws *WSHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	router.GET("/debug/stats", chat.Stats)
	router.GET("/ws", Authenticate(tokens), ws.Serve)

	api := router.Group("/api/chat", Authenticate(tokens))
	api.GET("/conversations", chat.Conversations)
	api.GET("/messages/:userId", chat.History)
	api.POST("/messages/:userId", chat.Send)
	return router
}

func NewServer(log *slog.Logger, config Config, router http.Handler) *Server {
	handler := cors.New(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		// Bearer tokens only, no cookies
		AllowCredentials: false,
	}).Handler(router)

	return &Server{
		log: log,
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(config.Host, fmt.Sprintf("%d", config.Port)),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}
}

// Run serves until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
		errs <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("HTTP server shutdown", "error", err)
		}
		return nil
	}
}
