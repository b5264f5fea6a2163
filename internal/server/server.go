package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"gamenight-server/internal/config"
	"gamenight-server/internal/database"
	"gamenight-server/internal/scoreboard"
)

// Server wires the live-score core together: the connection registry, the
// in-progress roster store, the broadcast hub, session claims, and the
// persistence layer for committed scores.
type Server struct {
	cfg *config.Config

	pool      *pgxpool.Pool
	store     *scoreboard.Store
	registry  *ConnectionRegistry
	hub       *Hub
	sessions  *SessionManager
	committer Committer
	limiter   *RateLimiter
	health    *ConnectionHealth

	stopSweep context.CancelFunc
}

// NewServer runs migrations, connects the database pool and builds the
// component graph. It returns the Server plus a configured http.Server ready
// for ListenAndServe.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, *http.Server, error) {
	if err := database.Migrate(cfg.Database, cfg.Server.MigrationsDir); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	clock := clockwork.NewRealClock()
	store := scoreboard.NewStoreWithClock(clock)
	registry := NewConnectionRegistry()

	s := &Server{
		cfg:       cfg,
		pool:      pool,
		store:     store,
		registry:  registry,
		hub:       NewHub(store, registry, cfg.Server.SendTimeout),
		sessions:  NewSessionManager(),
		committer: NewScoreCommitter(pool),
		limiter:   NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow, clock),
		health:    NewConnectionHealth(clock),
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel
	go s.idleSweepTask(sweepCtx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, httpServer, nil
}

// idleSweepTask periodically closes connections that have gone silent.
// Closing unblocks the connection's read loop, which then runs the normal
// cleanup path.
func (s *Server) idleSweepTask(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Server.IdleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, connID := range s.health.InactiveConnections(s.cfg.Server.IdleWindow) {
				conn := s.registry.Get(connID)
				if conn == nil {
					continue
				}
				log.Info().Str("connection_id", connID).Msg("closing idle connection")
				conn.Close(websocket.StatusGoingAway, "idle timeout")
			}
		}
	}
}

// Shutdown stops the idle sweeper, closes every live websocket so their read
// loops unwind, and releases the database pool. The http.Server is shut down
// separately by the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopSweep()

	s.registry.ForEachOpen(func(connID string, conn *websocket.Conn) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	})

	if s.pool != nil {
		s.pool.Close()
	}

	return nil
}
