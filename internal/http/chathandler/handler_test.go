package chathandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspacechat/internal/services/chat"
	"workspacechat/internal/ws"
)

type stubService struct {
	gotRoom  string
	gotLimit int
	err      error
}

func (s *stubService) Scope() chat.Scope { return chat.ScopeConversation }

func (s *stubService) Ingest(context.Context, string, string, chat.ClientMessage) (*chat.Message, error) {
	return nil, errors.New("not used")
}

func (s *stubService) LoadRecent(_ context.Context, roomID string, limit int) ([]chat.Message, error) {
	s.gotRoom, s.gotLimit = roomID, limit
	if s.err != nil {
		return nil, s.err
	}
	return []chat.Message{
		{ID: "m1", RoomID: roomID, Content: "first", Type: chat.TypeText, CreatedAt: time.Unix(1, 0).UTC()},
		{ID: "m2", RoomID: roomID, Content: "second", Type: chat.TypeText, CreatedAt: time.Unix(2, 0).UTC()},
	}, nil
}

func newEngine(svc chat.IChatService, hub *ws.Hub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(svc, hub, "/conversations").Register(r)
	return r
}

func TestHistoryDefaultsToFifty(t *testing.T) {
	svc := &stubService{}
	r := newEngine(svc, ws.NewHub(chat.ScopeConversation))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/c1/messages", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c1", svc.gotRoom)
	assert.Equal(t, 50, svc.gotLimit)

	var out []chat.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Content)
}

func TestHistoryRejectsLimitOutOfRange(t *testing.T) {
	r := newEngine(&stubService{}, ws.NewHub(chat.ScopeConversation))

	for _, q := range []string{"0", "51", "abc"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/c1/messages?limit="+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestHistoryStoreFailure(t *testing.T) {
	r := newEngine(&stubService{err: errors.New("db down")}, ws.NewHub(chat.ScopeConversation))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/c1/messages?limit=10", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMembers(t *testing.T) {
	hub := ws.NewHub(chat.ScopeConversation)
	r := newEngine(&stubService{}, hub)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/c1/members", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out MembersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, MembersResponse{RoomID: "c1", Members: 0}, out)
}
