package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltadefenders/farmchat-server/internal/auth"
	"github.com/deltadefenders/farmchat-server/internal/config"
	"github.com/deltadefenders/farmchat-server/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "farmchat.db")
	cfg.JWTSecret = "test-secret"
	cfg.ShutdownTimeout = time.Second
	cfg.ReconcileInterval = 10 * time.Millisecond
	return &cfg
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.JWTSecret = ""

	logger := zerolog.Nop()
	_, err := New(cfg, &logger)
	assert.Error(t, err)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	logger := zerolog.Nop()
	application, err := New(testConfig(t), &logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestReconcile_RepairsStalePointer(t *testing.T) {
	logger := zerolog.Nop()
	application, err := New(testConfig(t), &logger)
	require.NoError(t, err)
	t.Cleanup(application.cleanup)

	ctx := context.Background()
	st := application.store
	now := time.Now().UTC()
	for _, id := range []string{"u1", "u2"} {
		require.NoError(t, st.CreateUser(ctx, &store.User{
			ID: id, Name: id, Email: id + "@farm.test", PasswordHash: "x", Role: store.RoleBuyer, CreatedAt: now,
		}))
	}
	conv, err := application.conversations.Create(ctx, []string{"u1", "u2"})
	require.NoError(t, err)

	msg := &store.Message{ID: "m1", ConversationID: conv.ID, SenderID: "u1", Content: "hi", CreatedAt: now}
	require.NoError(t, st.SaveMessage(ctx, msg))

	application.reconcile(ctx)

	got, err := st.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageID)
	assert.Equal(t, "m1", *got.LastMessageID)
}

func TestNewJWTConfig(t *testing.T) {
	cfg := testConfig(t)
	jwtCfg := NewJWTConfig(cfg)

	token, err := auth.GenerateToken(jwtCfg, "u1", store.RoleFarmer)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(jwtCfg, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, cfg.JWTTTL, jwtCfg.TTL)
}
