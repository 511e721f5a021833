package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := Init(Config{Level: "loud"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("file output requires path", func(t *testing.T) {
		_, err := Init(Config{Level: "info", Output: "file"})
		require.Error(t, err)
	})

	t.Run("writes json lines to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "bot.log")
		closer, err := Init(Config{Level: "debug", Output: "file", FilePath: path, Format: "json"})
		require.NoError(t, err)

		Info().Str("user_id", "u1").Msg("hello")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"user_id":"u1"`)
		assert.Contains(t, string(data), `"message":"hello"`)
		assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	})
}
