package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/deltadefenders/farmchat-server/internal/auth"
	"github.com/deltadefenders/farmchat-server/internal/config"
	"github.com/deltadefenders/farmchat-server/internal/core"
	"github.com/deltadefenders/farmchat-server/internal/proto"
	"github.com/deltadefenders/farmchat-server/internal/service/conversations"
	"github.com/deltadefenders/farmchat-server/internal/service/messages"
	"github.com/deltadefenders/farmchat-server/internal/store"
	"github.com/deltadefenders/farmchat-server/internal/store/sqlite"
)

const testSecret = "test-secret"

type testEnv struct {
	cfg    config.Config
	auth   *auth.Service
	convs  *conversations.Service
	msgs   *messages.Service
	hub    *core.Hub
	server *stdhttp.Server
	ts     *httptest.Server

	stopHub context.CancelFunc
}

type testUser struct {
	ID    string
	Token string
}

// newTestEnv wires an in-memory store, the services, a running hub and an httptest server.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.JWTSecret = testSecret
	cfg.JWTIssuer = "test"
	cfg.JWTAudience = "test"
	cfg.ReadHeaderTimeout = time.Second
	cfg.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	disabledLogger := zerolog.Nop()

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
	convService := conversations.New(st, &disabledLogger)
	msgService := messages.New(st, convService, cfg.MaxContentLength, &disabledLogger)
	hub := core.NewHub(msgService, convService, &disabledLogger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	server := NewServer(hub, authService, convService, msgService, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{
		cfg:     cfg,
		auth:    authService,
		convs:   convService,
		msgs:    msgService,
		hub:     hub,
		server:  server,
		ts:      ts,
		stopHub: cancel,
	}
}

func (e *testEnv) register(t *testing.T, name string, role store.Role) testUser {
	t.Helper()

	email := strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@farm.test"
	token, err := e.auth.Register(context.Background(), name, email, "password123", role)
	require.NoError(t, err)
	identity, err := e.auth.Authenticate(token)
	require.NoError(t, err)
	return testUser{ID: identity.UserID, Token: token}
}

// do sends a request straight to the handler and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(resp, req)
	return resp
}

func (e *testEnv) createConversation(t *testing.T, owner testUser, others ...string) ConversationResponse {
	t.Helper()

	participants := append([]string{owner.ID}, others...)
	resp := e.do(t, stdhttp.MethodPost, "/api/conversations", owner.Token, CreateConversationRequest{Participants: participants})
	require.Equal(t, stdhttp.StatusCreated, resp.Code, resp.Body.String())

	var conv ConversationResponse
	decode(t, resp, &conv)
	return conv
}

func decode(t *testing.T, resp *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), v), resp.Body.String())
}

func (e *testEnv) wsURL(token string) string {
	u := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (e *testEnv) dial(ctx context.Context, t *testing.T, token string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL(token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// wireOutbound mirrors proto.Outbound with a raw payload for decoding in tests.
type wireOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}))
}

func read(ctx context.Context, t *testing.T, conn *websocket.Conn) wireOutbound {
	t.Helper()

	var out wireOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	return out
}

func join(ctx context.Context, t *testing.T, conn *websocket.Conn, conversationID string) {
	t.Helper()

	send(ctx, t, conn, proto.InboundTypeJoin, proto.ConversationRef{ConversationID: conversationID})
	out := read(ctx, t, conn)
	require.Equal(t, proto.OutboundTypeEvent, out.Type, "join failed: %+v", out.Error)
	require.Equal(t, proto.EventJoinedConversation, out.Event)
}
