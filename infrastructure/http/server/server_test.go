package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"market-chat/auth"
	"market-chat/domain"
	"market-chat/errors"
	"market-chat/gateway"
	"market-chat/observability"
	"market-chat/projection"
	"market-chat/repositories"
	"market-chat/runtime"
	"market-chat/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const secret = "a-test-secret-long-enough"

type testServer struct {
	*httptest.Server
	db     *badger.DB
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	log := slog.Default()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	store, err := repositories.NewMessageRepository(db, log, 1000)
	require.NoError(t, err)
	users := repositories.NewUserRepository(db)
	monitoring := observability.NewMonitoringManager(log)
	registry := runtime.NewRegistry()
	fanout := runtime.NewFanout(log, registry, monitoring, 100*time.Millisecond)
	chat := services.NewChatService(log, store, fanout, projection.NewConversations(store, users, log), users, monitoring)
	gw := gateway.NewGateway(log, registry, chat, monitoring, 16)
	tokens := auth.NewTokenManager(secret)

	router := NewRouter(log, tokens, NewChatHandler(chat, monitoring), NewWSHandler(log, gw, []string{"http://shop.local"}, time.Second))
	srv := NewServer(log, Config{AllowedOrigins: []string{"http://shop.local"}}, router)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = store.Close()
		_ = db.Close()
	})
	return testServer{Server: ts, db: db, tokens: tokens}
}

func (s testServer) token(t *testing.T, userID, name string) string {
	t.Helper()
	token, err := s.tokens.GenerateToken(userID, name, time.Hour)
	require.NoError(t, err)
	return token
}

func (s testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	request, err := http.NewRequest(method, s.URL+path, &payload)
	require.NoError(t, err)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	t.Cleanup(func() { _ = response.Body.Close() })
	return response
}

func decode[T any](t *testing.T, response *http.Response) T {
	t.Helper()
	var value T
	require.NoError(t, json.NewDecoder(response.Body).Decode(&value))
	return value
}

func TestRest_Requires_Token(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	response := s.do(t, http.MethodGet, "/api/chat/conversations", "", nil)
	req.Equal(http.StatusUnauthorized, response.StatusCode)
	req.Equal(errors.CodeUnauthorized, decode[errorResponse](t, response).Code)

	response = s.do(t, http.MethodGet, "/api/chat/conversations", "not-a-token", nil)
	req.Equal(http.StatusUnauthorized, response.StatusCode)
}

func TestRest_Send_History_Conversations(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	buyer := s.token(t, "buyer", "Bea")
	seller := s.token(t, "seller", "Sam")

	// When the buyer sends a message over REST
	response := s.do(t, http.MethodPost, "/api/chat/messages/seller", buyer, sendRequest{Content: "still available?", ClientRef: "c-1"})
	req.Equal(http.StatusCreated, response.StatusCode)
	sent := decode[sendResponse](t, response)
	req.Equal("c-1", sent.ClientRef)
	req.Equal(domain.UserID("buyer"), sent.Message.Sender)

	// Then both sides see it in history
	response = s.do(t, http.MethodGet, "/api/chat/messages/buyer", seller, nil)
	req.Equal(http.StatusOK, response.StatusCode)
	history := decode[[]domain.Message](t, response)
	req.Len(history, 1)
	req.Equal(sent.Message.ID, history[0].ID)

	// And in the seller's conversations
	response = s.do(t, http.MethodGet, "/api/chat/conversations", seller, nil)
	req.Equal(http.StatusOK, response.StatusCode)
	summaries := decode[[]domain.ConversationSummary](t, response)
	req.Len(summaries, 1)
	req.Equal(domain.UserID("buyer"), summaries[0].CounterpartyID)
	req.Equal("still available?", summaries[0].LastMessageContent)
}

func TestRest_Empty_Results_Are_Arrays(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	buyer := s.token(t, "buyer", "")

	response := s.do(t, http.MethodGet, "/api/chat/messages/nobody", buyer, nil)
	req.Equal(http.StatusOK, response.StatusCode)
	req.Equal([]domain.Message{}, decode[[]domain.Message](t, response))

	response = s.do(t, http.MethodGet, "/api/chat/conversations", buyer, nil)
	req.Equal([]domain.ConversationSummary{}, decode[[]domain.ConversationSummary](t, response))
}

func TestRest_Send_Validation(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	buyer := s.token(t, "buyer", "")

	response := s.do(t, http.MethodPost, "/api/chat/messages/seller", buyer, sendRequest{Content: "   "})
	req.Equal(http.StatusBadRequest, response.StatusCode)
	req.Equal(errors.CodeValidation, decode[errorResponse](t, response).Code)

	response = s.do(t, http.MethodPost, "/api/chat/messages/buyer", buyer, sendRequest{Content: "me"})
	req.Equal(http.StatusBadRequest, response.StatusCode)
}

func TestRest_Store_Unavailable(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	buyer := s.token(t, "buyer", "")
	req.NoError(s.db.Close())

	response := s.do(t, http.MethodGet, "/api/chat/messages/seller", buyer, nil)

	req.Equal(http.StatusServiceUnavailable, response.StatusCode)
	req.Equal(errorResponse{Code: errors.CodeStoreUnavailable, Reason: "store unavailable"}, decode[errorResponse](t, response))
}

func TestCors_Preflight(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	request, err := http.NewRequest(http.MethodOptions, s.URL+"/api/chat/conversations", nil)
	req.NoError(err)
	request.Header.Set("Origin", "http://shop.local")
	request.Header.Set("Access-Control-Request-Method", http.MethodGet)
	response, err := http.DefaultClient.Do(request)
	req.NoError(err)
	defer response.Body.Close()

	req.Equal("http://shop.local", response.Header.Get("Access-Control-Allow-Origin"))
	req.Empty(response.Header.Get("Access-Control-Allow-Credentials"))
}

func TestStats(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	response := s.do(t, http.MethodGet, "/debug/stats", "", nil)

	req.Equal(http.StatusOK, response.StatusCode)
	_ = decode[observability.MonitoringStats](t, response)
}

func (s testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) gateway.Outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame gateway.Outbound
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// readUntil skips the receive frames that may interleave with the awaited reply.
func readUntil(t *testing.T, conn *websocket.Conn, frameType gateway.FrameType) gateway.Outbound {
	t.Helper()
	for i := 0; i < 5; i++ {
		frame := readFrame(t, conn)
		if frame.Type == frameType {
			return frame
		}
	}
	t.Fatalf("no %s frame", frameType)
	return gateway.Outbound{}
}

func TestWebsocket_Join_Send_Receive(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	buyer := s.dial(t, s.token(t, "buyer", "Bea"))
	seller := s.dial(t, s.token(t, "seller", "Sam"))

	// Given both are joined
	req.NoError(buyer.WriteJSON(gateway.Inbound{Type: gateway.FrameJoin, UserID: "buyer"}))
	req.Equal(gateway.FrameJoined, readFrame(t, buyer).Type)
	req.NoError(seller.WriteJSON(gateway.Inbound{Type: gateway.FrameJoin, UserID: "seller"}))
	req.Equal(gateway.FrameJoined, readFrame(t, seller).Type)

	// When the buyer sends
	req.NoError(buyer.WriteJSON(gateway.Inbound{Type: gateway.FrameSend, Receiver: "seller", Content: "hello", ClientRef: "c-1"}))

	// Then the buyer gets its acknowledgement and the seller the message
	sent := readUntil(t, buyer, gateway.FrameSent)
	req.Equal("c-1", sent.ClientRef)
	received := readUntil(t, seller, gateway.FrameReceive)
	req.Equal(sent.Message.ID, received.Message.ID)
	req.Equal("hello", received.Message.Content)
}

func TestWebsocket_Errors(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	buyer := s.dial(t, s.token(t, "buyer", ""))

	// Send before join
	req.NoError(buyer.WriteJSON(gateway.Inbound{Type: gateway.FrameSend, Receiver: "seller", Content: "hi", ClientRef: "c-2"}))
	frame := readFrame(t, buyer)
	req.Equal(gateway.FrameError, frame.Type)
	req.Equal(errors.CodeUnauthorized, frame.Code)
	req.Equal("c-2", frame.ClientRef)

	// Join as someone else
	req.NoError(buyer.WriteJSON(gateway.Inbound{Type: gateway.FrameJoin, UserID: "seller"}))
	req.Equal(errors.CodeUnauthorized, readFrame(t, buyer).Code)

	// Malformed frame keeps the connection open
	req.NoError(buyer.WriteMessage(websocket.TextMessage, []byte("{oops")))
	req.Equal(errors.CodeValidation, readFrame(t, buyer).Code)

	req.NoError(buyer.WriteJSON(gateway.Inbound{Type: gateway.FrameJoin, UserID: "buyer"}))
	req.Equal(gateway.FrameJoined, readFrame(t, buyer).Type)
}

func TestWebsocket_Rejects_Foreign_Origin_And_Missing_Token(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"

	_, response, err := websocket.DefaultDialer.Dial(url, nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, response.StatusCode)

	header := http.Header{}
	header.Set("Origin", "http://evil.local")
	_, response, err = websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", url, s.token(t, "buyer", "")), header)
	req.Error(err)
	req.Equal(http.StatusForbidden, response.StatusCode)
}
