package sessions_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jrsteele09/go-punch-clock/sessions"
	"github.com/stretchr/testify/require"
)

func testSession() *sessions.Session {
	return &sessions.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "bearer",
		ExpiresAt:    time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
		User: sessions.User{
			ID:       "user-1",
			Email:    "a@b.com",
			Metadata: sessions.Metadata{FullName: "Ana Silva"},
		},
	}
}

func exerciseStorage(t *testing.T, storage sessions.Storage) {
	t.Helper()
	ctx := context.Background()

	loaded, err := storage.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)

	require.NoError(t, storage.Save(ctx, testSession()))

	loaded, err = storage.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "user-1", loaded.UserID())
	require.Equal(t, "Ana Silva", loaded.User.Metadata.FullName)
	require.True(t, loaded.ExpiresAt.Equal(testSession().ExpiresAt))

	require.NoError(t, storage.Clear(ctx))
	require.NoError(t, storage.Clear(ctx), "clearing twice is not an error")

	loaded, err = storage.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestFileStorage(t *testing.T) {
	exerciseStorage(t, sessions.NewFileStorage(t.TempDir()))
}

func TestFileStorage_SaveNil(t *testing.T) {
	err := sessions.NewFileStorage(t.TempDir()).Save(context.Background(), nil)
	require.Error(t, err)
}

func TestRedisStorage(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}
	storage, err := sessions.NewRedisStorage(context.Background(), redisURL, "test-device")
	require.NoError(t, err)
	defer storage.Close()

	require.NoError(t, storage.Clear(context.Background()))
	exerciseStorage(t, storage)
}

func TestSession_Expired(t *testing.T) {
	s := testSession()
	require.False(t, s.Expired(s.ExpiresAt.Add(-2*time.Minute), time.Minute))
	require.True(t, s.Expired(s.ExpiresAt.Add(-30*time.Second), time.Minute))
	require.True(t, s.Expired(s.ExpiresAt.Add(time.Second), 0))

	var none *sessions.Session
	require.Equal(t, "", none.UserID())
}

func TestSession_Token(t *testing.T) {
	s := testSession()
	tok := s.Token()
	require.Equal(t, "access-1", tok.AccessToken)
	require.Equal(t, "refresh-1", tok.RefreshToken)
	require.Equal(t, s.ExpiresAt, tok.Expiry)
}
