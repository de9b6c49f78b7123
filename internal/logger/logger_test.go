package logger

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iurnickita/artcares/internal/logger/config"
)

func TestNewZapLog(t *testing.T) {
	_, err := NewZapLog(config.Config{LogLevel: "bogus"})
	require.Error(t, err)

	zl, err := NewZapLog(config.Config{LogLevel: "debug"})
	require.NoError(t, err)
	require.True(t, zl.Core().Enabled(zap.DebugLevel))
}

func TestNewZapLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artcares.log")

	zl, err := NewZapLog(config.Config{LogLevel: "info", LogFile: path, LogMaxSizeMB: 1, LogMaxBackups: 1})
	require.NoError(t, err)

	zl.Info("purchase completed", zap.Int64("artwork", 7))
	_ = zl.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "purchase completed")
}

func TestRequestLogMdlw(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	zaplog := zap.New(core)

	h := RequestLogMdlw(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}, zaplog)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/api/artworks", nil))

	require.Equal(t, http.StatusTeapot, w.Code)
	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "/api/artworks", entries[0].ContextMap()["path"])
	require.Equal(t, "418", entries[1].ContextMap()["code"])
	require.Equal(t, "15", entries[1].ContextMap()["length"])
}
