package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"workspacechat/internal/config"
	"workspacechat/internal/database/db_client"
	"workspacechat/internal/database/schema"
	"workspacechat/internal/http/http_server"
	"workspacechat/internal/notify"
	"workspacechat/internal/objectstore"
	"workspacechat/internal/redis/redis_client"
	"workspacechat/internal/services/chat"
	"workspacechat/internal/store"
	"workspacechat/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	var err error
	var cfg *config.Config
	var redisClient *redis.Client
	var notifier chat.Notifier

	// 1. Load configuration
	cfg, err = config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully",
		zap.Uint16("http_port", cfg.HttpServerPort),
		zap.Bool("redis_enabled", cfg.RedisEnabled),
		zap.Int("backfill_limit", cfg.BackfillLimit))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Postgres db client + schema
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	if err := schema.Apply(ctx, pgDb); err != nil {
		Log.Fatal("pg-schema", zap.Error(err))
	}

	health := map[string]http_server.Pinger{"postgres": pgDb.PingContext}

	// 4. Redis (optional: cross-instance fan-out and notification queue)
	if cfg.RedisEnabled {
		redisClient, err = redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort))
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		health["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		Log.Debug("Redis client created successfully")
	}

	if cfg.NotifyEnabled {
		q := notify.NewQueue(redis_client.Addr(cfg.RedisHost, int(cfg.RedisPort)))
		defer q.Close()
		notifier = q
	}

	// 5. Object storage for signed attachment URLs
	storage, err := objectstore.New(objectstore.Options{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		Log.Fatal("objectstore", zap.Error(err))
	}

	// 6. One chat core per scope
	documents := store.NewDocuments(pgDb)
	senders := map[chat.Scope]chat.SenderResolver{
		chat.ScopeProject:      chat.DisplayNameResolver{},
		chat.ScopeConversation: store.NewUsers(pgDb),
	}
	paths := map[chat.Scope][2]string{
		chat.ScopeProject:      {"/ws/projects", "/projects"},
		chat.ScopeConversation: {"/ws/conversations", "/conversations"},
	}

	var endpoints []http_server.ChatEndpoint
	for _, scope := range []chat.Scope{chat.ScopeProject, chat.ScopeConversation} {
		endpoints = append(endpoints, http_server.ChatEndpoint{
			WsPath:   paths[scope][0],
			RestBase: paths[scope][1],
			Server:   newChatServer(cfg, scope, pgDb, redisClient, documents, storage, senders[scope], notifier),
		})
	}

	// 7. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, endpoints, health)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
	Log.Info("shutdown complete")
}

func newChatServer(
	cfg *config.Config,
	scope chat.Scope,
	db *sql.DB,
	rdc *redis.Client,
	documents chat.DocumentStore,
	storage chat.ObjectStorage,
	senders chat.SenderResolver,
	notifier chat.Notifier,
) *ws.WsServer {
	svc := chat.NewChatService(scope, chat.Deps{
		Messages:  store.NewMessageTable(db, store.SchemaFor(scope)),
		Documents: documents,
		Storage:   storage,
		Senders:   senders,
		Notifier:  notifier,
		URLTTL:    time.Duration(cfg.SignedURLTTLSeconds) * time.Second,
	})

	hub := ws.NewHub(scope)
	fanout := ws.NopFanout()
	if rdc != nil {
		fanout = ws.NewRedisFanout(rdc, hub, scope)
	}

	return ws.NewWsServer(hub, svc, fanout, ws.Options{
		BackfillLimit:    cfg.BackfillLimit,
		ReadLimit:        cfg.WsReadLimit,
		NotifyRejections: cfg.NotifyRejections,
	})
}
