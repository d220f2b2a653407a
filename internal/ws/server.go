package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"workspacechat/internal/metrics"
	"workspacechat/internal/services/chat"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second // must be < pongWait

	backfillTimeout = 5 * time.Second
	ingestTimeout   = 5 * time.Second
	publishTimeout  = 2 * time.Second
)

type connState int

const (
	stateConnecting connState = iota
	stateActive
	stateClosing
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateActive:
		return "active"
	case stateClosing:
		return "closing"
	default:
		return "closed"
	}
}

type Options struct {
	BackfillLimit    int
	ReadLimit        int64
	NotifyRejections bool
}

type WsServer struct {
	hub      *Hub
	svc      chat.IChatService
	fanout   Fanout
	upgrader websocket.Upgrader
	opts     Options
}

func NewWsServer(h *Hub, svc chat.IChatService, fanout Fanout, opts Options) *WsServer {
	if fanout == nil {
		fanout = NopFanout()
	}
	if opts.BackfillLimit <= 0 {
		opts.BackfillLimit = chat.DefaultBackfillLimit
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 64 << 10
	}
	return &WsServer{
		hub:    h,
		svc:    svc,
		fanout: fanout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true }, // no auth layer in front of chat
		},
		opts: opts,
	}
}

func (s *WsServer) Hub() *Hub { return s.hub }

func (s *WsServer) Service() chat.IChatService { return s.svc }

// ---------------------------------------------------------------------------
//  Public: Gin entry‑point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	var hs Handshake
	if err := ginCtx.ShouldBindQuery(&hs); err != nil {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "room_id and identity are required"})
		return
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	conn := newClientConn(rawConn, s.opts.ReadLimit)
	go conn.pinger()

	// The handler goroutine is the connection's task for its whole life.
	s.Serve(hs, conn)
}

// Serve runs one connection through join, backfill, the receive loop and
// cleanup. It returns once the connection is closed.
func (s *WsServer) Serve(hs Handshake, conn Conn) {
	scope := string(s.svc.Scope())
	log := zap.L().With(
		zap.String("scope", scope),
		zap.String("room_id", hs.RoomID),
		zap.String("identity", hs.Identity),
	)
	state := stateConnecting

	s.hub.Join(hs.RoomID, conn)
	s.fanout.Subscribe(hs.RoomID)
	metrics.ChatConnections.WithLabelValues(scope).Inc()

	defer func() {
		state = stateClosing
		log.Debug("ws.state", zap.Stringer("state", state))
		s.hub.Leave(hs.RoomID, conn)
		s.fanout.Unsubscribe(hs.RoomID)
		metrics.ChatConnections.WithLabelValues(scope).Dec()
		_ = conn.Close()
		state = stateClosed
		log.Debug("ws.state", zap.Stringer("state", state))
	}()

	if err := s.backfill(hs.RoomID, conn); err != nil {
		log.Warn("ws.backfill", zap.Error(err))
		return
	}

	state = stateActive
	log.Debug("ws.state", zap.Stringer("state", state))

	for {
		in, err := conn.ReceiveNext()
		if err != nil {
			if errors.Is(err, errMalformedFrame) {
				log.Debug("ws.malformed_frame", zap.Error(err))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("ws.read", zap.Error(err))
			}
			return // client closed or errored
		}
		s.ingest(hs, conn, in, log)
	}
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) backfill(roomID string, conn Conn) error {
	ctx, cancel := context.WithTimeout(context.Background(), backfillTimeout)
	defer cancel()

	history, err := s.svc.LoadRecent(ctx, roomID, s.opts.BackfillLimit)
	if err != nil {
		return err
	}
	for i := range history {
		if err := conn.Send(&history[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *WsServer) ingest(hs Handshake, conn Conn, in chat.ClientMessage, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	msg, err := s.svc.Ingest(ctx, hs.RoomID, hs.Identity, in)
	cancel()

	if err != nil {
		switch {
		case errors.Is(err, chat.ErrDocumentNotFound),
			errors.Is(err, chat.ErrSenderNotFound),
			errors.Is(err, chat.ErrInvalidMessage):
			log.Info("chat.ingest_dropped", zap.Error(err))
		default:
			log.Error("chat.ingest_failed", zap.Error(err))
		}
		if s.opts.NotifyRejections {
			_ = conn.Send(chat.SystemNotice(hs.RoomID, rejectionText(err)))
		}
		return
	}

	s.hub.Broadcast(hs.RoomID, msg)

	ctx, cancel = context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.fanout.Publish(ctx, hs.RoomID, msg); err != nil {
		log.Warn("ws.fanout_publish", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func rejectionText(err error) string {
	switch {
	case errors.Is(err, chat.ErrDocumentNotFound):
		return "message rejected: document not found"
	case errors.Is(err, chat.ErrSenderNotFound):
		return "message rejected: unknown sender"
	case errors.Is(err, chat.ErrInvalidMessage):
		return "message rejected: invalid message"
	default:
		return "message could not be saved"
	}
}
