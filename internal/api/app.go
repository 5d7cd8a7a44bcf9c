package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"

	"github.com/gatherly/gatherly/internal/auth"
	"github.com/gatherly/gatherly/internal/config"
	"github.com/gatherly/gatherly/internal/database"
	"github.com/gatherly/gatherly/internal/server"
	"github.com/gatherly/gatherly/internal/token"
)

// App is the HTTP surface: credential endpoints, event join/leave, message
// and post history, and the websocket upgrade.
type App struct {
	log            *log.Logger
	db             database.Repository
	cs             *server.ChatServer
	authn          *auth.Authenticator
	authz          *auth.Oracle
	tokens         *token.Manager
	revocations    token.RevocationRegistry
	httpServer     *http.Server
	allowedOrigins []string
	tokenTTL       time.Duration
}

func NewApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.Repository,
	authn *auth.Authenticator, authz *auth.Oracle, tokens *token.Manager,
	revocations token.RevocationRegistry, cfg *config.Config) *App {

	s := &App{
		log:            logger,
		db:             db,
		cs:             cs,
		authn:          authn,
		authz:          authz,
		tokens:         tokens,
		revocations:    revocations,
		allowedOrigins: cfg.AllowedOrigins,
		tokenTTL:       cfg.TokenTTL,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/login", s.login)
	mux.Handle("POST /api/logout", s.authMiddleware(s.logout))
	mux.Handle("GET /api/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/groups/{group_id}/events/{event_id}/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/groups/{group_id}/events/{event_id}/messages", s.authMiddleware(s.createMessage))
	mux.Handle("GET /api/groups/{group_id}/events/{event_id}/posts", s.authMiddleware(s.getPosts))
	mux.Handle("POST /api/groups/{group_id}/events/{event_id}/posts", s.authMiddleware(s.createPost))
	mux.Handle("GET /api/events/{event_id}/participations", s.authMiddleware(s.listParticipations))
	mux.Handle("POST /api/events/{event_id}/participations", s.authMiddleware(s.joinEvent))
	mux.Handle("DELETE /api/events/{event_id}/participations", s.authMiddleware(s.leaveEvent))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.httpServer = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *App) Start() error {
	s.log.Printf("starting server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.log.Println("server shutdown complete")
	return nil
}
