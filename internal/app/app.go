// Package app wires configuration into a running HTTP and WebSocket server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/nikhil/taskhub/internal/blob"
	"github.com/nikhil/taskhub/internal/config"
	"github.com/nikhil/taskhub/internal/database"
	"github.com/nikhil/taskhub/internal/email"
	"github.com/nikhil/taskhub/internal/handlers"
	"github.com/nikhil/taskhub/internal/hub"
	"github.com/nikhil/taskhub/internal/logger"
	"github.com/nikhil/taskhub/internal/membership"
	"github.com/nikhil/taskhub/internal/middleware"
	"github.com/nikhil/taskhub/internal/models"
	"github.com/nikhil/taskhub/internal/relay"
	"github.com/nikhil/taskhub/internal/routes"
	"github.com/nikhil/taskhub/internal/sequencer"
	"github.com/nikhil/taskhub/internal/service/chat"
	"github.com/nikhil/taskhub/internal/service/notification"
	"github.com/nikhil/taskhub/internal/service/realtime"
	"github.com/nikhil/taskhub/internal/service/team"
	"github.com/nikhil/taskhub/internal/store"
)

// fanout is the delivery path shared by the services: the local hub, or the
// Redis relay in front of it.
type fanout interface {
	BroadcastToTeam(teamID int64, ev models.Event) (int, error)
	SendToUser(userID int64, ev models.Event) (int, error)
	Evict(teamID, userID int64) int
	EvictTeam(teamID int64) int
}

// App owns every long-lived resource of the server.
type App struct {
	Config  *config.Config
	Log     *logger.Logger
	Store   *store.Store
	Hub     *hub.Hub
	Handler http.Handler

	Teams         *team.TeamService
	Chat          *chat.Engine
	Notifications *notification.Service

	db     *sql.DB
	redis  *redis.Client
	relay  *relay.Relay
	cancel context.CancelFunc
}

// New opens the database and the optional Redis relay and blob store, and
// builds the services and router.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return build(ctx, cfg, log, db)
}

func build(ctx context.Context, cfg *config.Config, log *logger.Logger, db *sql.DB) (*App, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	a := &App{Config: cfg, Log: log, db: db, cancel: cancel}

	a.Store = store.New(db, cfg.Database.Driver)
	a.Hub = hub.New(hub.Options{
		SendBuffer:     cfg.Realtime.SendBuffer,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
	}, log.Named("hub"))

	var out fanout = a.Hub
	if cfg.Redis.URL != "" {
		client, err := relay.Dial(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, multierr.Append(err, a.Close())
		}
		a.redis = client
		a.relay = relay.New(client, cfg.Redis.Channel, a.Hub, log.Named("relay"))
		if err := a.relay.Start(runCtx); err != nil {
			return nil, multierr.Append(err, a.Close())
		}
		out = a.relay
	}

	var blobs blob.Store
	if cfg.Blob.Endpoint != "" {
		ms, err := blob.NewMinioStore(ctx, cfg.Blob)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("blob store: %w", err), a.Close())
		}
		blobs = ms
	}

	oracle := membership.NewOracle(a.Store)
	seq := sequencer.New(cfg.Realtime.SerializeTeamEvents)
	if !seq.Enabled() {
		log.Warn("Per-team sequencing disabled; membership changes may race with sends")
	}

	a.Notifications = notification.NewService(a.Store, out, email.NewService(cfg.SMTP), cfg.Realtime.HistoryLimit, log.Named("notification-service"))
	a.Chat = chat.NewEngine(oracle, a.Store, out, a.Hub, seq, log.Named("chat-service"))
	a.Teams = team.NewTeamService(oracle, a.Store, out, out, a.Notifications, seq, log.Named("team-service"))
	dispatcher := realtime.NewDispatcher(a.Chat, a.Teams, log.Named("dispatcher"))

	auth := middleware.NewAuthenticator(cfg.Auth.JWTSecret, a.Store, log.Named("auth"))
	a.Handler = routes.RegisterAllRoutes(routes.Deps{
		Auth:          auth,
		WebSocket:     handlers.NewWebSocketHandler(a.Hub, dispatcher, cfg.Server.AllowedOrigins, log.Named("websocket")),
		Teams:         handlers.NewTeamHandler(a.Teams, a.Chat, oracle, blobs, cfg.Blob.MaxSize, log.Named("team-handler")),
		Notifications: handlers.NewNotificationHandler(a.Notifications, log.Named("notification-handler")),
		Health:        handlers.Health(a.Store),
	})
	return a, nil
}

// Close disconnects every client and releases the relay, Redis and the
// database.
func (a *App) Close() error {
	a.cancel()
	if a.Hub != nil {
		a.Hub.Close()
	}
	var err error
	if a.relay != nil {
		err = multierr.Append(err, a.relay.Close())
	}
	if a.redis != nil {
		err = multierr.Append(err, a.redis.Close())
	}
	return multierr.Append(err, a.db.Close())
}
