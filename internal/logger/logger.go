package logger

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iurnickita/artcares/internal/logger/config"
)

func NewZapLog(cfg config.Config) (*zap.Logger, error) {
	// преобразуем текстовый уровень логирования в zap.AtomicLevel
	lvl, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	// без файла - стандартная production-конфигурация
	if cfg.LogFile == "" {
		zapcfg := zap.NewProductionConfig()
		zapcfg.Level = lvl
		return zapcfg.Build()
	}

	// файл с ротацией + stderr
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	file := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, file, lvl),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), lvl),
	)
	return zap.New(core, zap.AddCaller()), nil
}

// middleware-логер для входящих HTTP-запросов.
// Тело запроса не пишется: в нём платёжный токен и адреса покупателя
func RequestLogMdlw(h http.HandlerFunc, zaplog *zap.Logger) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zaplog.Info("got incoming HTTP request",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
		)

		wl := NewResponseWriterLogger(w)

		handlerStart := time.Now()
		h(wl, r)
		handlerDuration := time.Since(handlerStart)

		zaplog.Info("send HTTP response",
			zap.String("code", strconv.Itoa(wl.statusCode)),
			zap.String("length", strconv.Itoa(wl.length)),
			zap.String("duration", handlerDuration.String()),
		)
	})
}

type responseWriterLogger struct {
	http.ResponseWriter
	statusCode int
	length     int
}

func NewResponseWriterLogger(w http.ResponseWriter) *responseWriterLogger {
	return &responseWriterLogger{w, http.StatusOK, 0}
}

func (wl *responseWriterLogger) WriteHeader(code int) {
	wl.statusCode = code
	wl.ResponseWriter.WriteHeader(code)
}

func (wl *responseWriterLogger) Write(b []byte) (n int, err error) {
	n, err = wl.ResponseWriter.Write(b)
	wl.length += n
	return
}
