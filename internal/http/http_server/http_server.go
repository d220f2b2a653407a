package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/abrar71/swaggerfilesv2" // swagger embed files

	"workspacechat/internal/http/chathandler"
	"workspacechat/internal/ws"
)

// ChatEndpoint mounts one chat scope: its websocket stream and REST routes.
type ChatEndpoint struct {
	WsPath   string // e.g. "/ws/projects"
	RestBase string // e.g. "/projects"
	Server   *ws.WsServer
}

// Pinger is anything /healthz should check.
type Pinger func(ctx context.Context) error

type httpServer struct {
	listenPort uint16
	srv        http.Server
	ln         net.Listener
	endpoints  []ChatEndpoint
	health     map[string]Pinger
	ctx        context.Context
}

func NewHttpServer(ctx context.Context, listenPort uint16, endpoints []ChatEndpoint, health map[string]Pinger) *httpServer {
	return &httpServer{
		listenPort: listenPort,
		endpoints:  endpoints,
		health:     health,
		ctx:        ctx,
	}
}

func (h *httpServer) Engine() *gin.Engine {
	routerEngine := gin.New()

	// Swagger UI and API specs
	routerEngine.StaticFS("/swagger-apis", http.FS(swaggerfilesv2.FS))
	routerEngine.Static("/api-specs", "api_specs")

	routerEngine.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	routerEngine.GET("/healthz", h.healthz)
	routerEngine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	for _, ep := range h.endpoints {
		// websocket endpoint
		routerEngine.GET(ep.WsPath, ep.Server.Handle)

		// REST API
		chathandler.New(ep.Server.Service(), ep.Server.Hub(), ep.RestBase).Register(routerEngine)
	}
	return routerEngine
}

func (h *httpServer) Start() error {
	var err error
	listenAddr := fmt.Sprintf(":%d", h.listenPort)
	h.ln, err = net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}

	zap.L().Info("http_listen", zap.String("addr", listenAddr))
	return h.serve(h.ln)
}

// serve blocks until the listener fails or, after ctx is cancelled, until
// Dispose has drained requests and closed every hub.
func (h *httpServer) serve(ln net.Listener) error {
	h.srv = http.Server{
		Handler: h.Engine(),
	}

	disposed := make(chan struct{})
	go func() {
		defer close(disposed)
		<-h.ctx.Done()
		_ = h.Dispose()
	}()

	err := h.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-disposed
		return nil
	}
	return err
}

func (h *httpServer) healthz(ginCtx *gin.Context) {
	ctx, cancel := context.WithTimeout(ginCtx.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{}
	for name, ping := range h.health {
		if err := ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body[name] = err.Error()
			continue
		}
		body[name] = "ok"
	}
	ginCtx.JSON(status, body)
}

// Dispose gracefully shuts the HTTP server down.
// It waits up to 10 s for in‑flight requests to finish. Hijacked websocket
// connections are not tracked by the server; close them through the hubs.
func (h *httpServer) Dispose() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http_dispose", zap.Error(err))
		return err
	}

	for _, ep := range h.endpoints {
		ep.Server.Hub().CloseAll()
	}
	return nil
}
