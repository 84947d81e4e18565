package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("JWT_SECRET", "0123456789abcdef")

	config, err := Load()

	req.NoError(err)
	req.Equal(8080, config.Port)
	req.Equal(9090, config.GrpcPort)
	req.Equal(2*time.Second, config.SinkTimeout)
	req.Equal(2000, config.MaxContentLength)
	req.Equal([]string{"*"}, config.Origins())
	req.False(config.RelayEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("ALLOWED_ORIGINS", "http://a.local, http://b.local,")
	t.Setenv("SINK_TIMEOUT", "150ms")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	config, err := Load()

	req.NoError(err)
	req.Equal([]string{"http://a.local", "http://b.local"}, config.Origins())
	req.Equal(150*time.Millisecond, config.SinkTimeout)
	req.True(config.RelayEnabled())
}

func TestLoad_Rejects_Invalid(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("BADGER_FILEPATH", t.TempDir())
		_, err := Load()
		require.Error(t, err)
	})
	t.Run("short secret", func(t *testing.T) {
		t.Setenv("BADGER_FILEPATH", t.TempDir())
		t.Setenv("JWT_SECRET", "short")
		_, err := Load()
		require.Error(t, err)
	})
	t.Run("same ports", func(t *testing.T) {
		t.Setenv("BADGER_FILEPATH", t.TempDir())
		t.Setenv("JWT_SECRET", "0123456789abcdef")
		t.Setenv("PORT", "9000")
		t.Setenv("GRPC_PORT", "9000")
		_, err := Load()
		require.Error(t, err)
	})
}
