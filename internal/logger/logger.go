// Package logger собирает zerolog-логгер из переменных окружения.
// Глобального логгера нет: корневой логгер создаётся в cmd и передаётся дальше.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options задаёт параметры логгера.
type Options struct {
	Level      string
	Format     string // console | json
	Service    string
	Writer     io.Writer
	WithCaller bool
}

// Env - источник переменных окружения (сигнатура os.LookupEnv).
type Env func(key string) (string, bool)

// FromEnv читает LOG_LEVEL, LOG_FORMAT и LOG_CALLER.
func FromEnv(env Env) Options {
	if env == nil {
		env = os.LookupEnv
	}
	get := func(key, def string) string {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			return strings.ToLower(strings.TrimSpace(v))
		}
		return def
	}
	caller := get("LOG_CALLER", "false")
	return Options{
		Level:      get("LOG_LEVEL", "info"),
		Format:     get("LOG_FORMAT", "console"),
		WithCaller: caller == "1" || caller == "true",
	}
}

// New строит корневой логгер.
func New(opt Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if opt.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp()
	if opt.Service != "" {
		ctx = ctx.Str("service", opt.Service)
	}

	log := ctx.Logger()
	if opt.WithCaller {
		log = log.With().Caller().Logger()
	}
	return log
}

// Named возвращает дочерний логгер компонента.
func Named(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
