// Package utils предоставляет логгер и вспомогательные функции для relay.
//
// Логгер построен поверх zerolog, но сохраняет простой API вида
// utils.Info("msg", "key", value, ...), чтобы библиотечный код не зависел
// от конкретного backend. До вызова InitLogger все вызовы — no-op
// (тесты не засоряют вывод).
package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LoggerOptions — параметры инициализации логгера.
type LoggerOptions struct {
	// Level — минимальный уровень: debug, info, warn, error.
	Level string

	// File — писать в файл poncho-relay-YYYY-MM-DD-HH-MM.log в текущей директории.
	// Если false — ConsoleWriter в stderr.
	File bool

	// Writer — явный writer (используется в тестах). Имеет приоритет над File.
	Writer io.Writer
}

var (
	logMutex sync.RWMutex
	logger   = zerolog.Nop()
	logFile  *os.File
)

// InitLogger инициализирует глобальный логгер.
//
// Повторный вызов закрывает предыдущий файл и переинициализирует логгер.
func InitLogger(opts LoggerOptions) error {
	logMutex.Lock()
	defer logMutex.Unlock()

	closeFileLocked()

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer
	switch {
	case opts.Writer != nil:
		out = opts.Writer
	case opts.File:
		filename := fmt.Sprintf("poncho-relay-%s.log", time.Now().Format("2006-01-02-15-04"))
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		out = f
	default:
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	logger.Info().Str("level", level.String()).Msg("Logger initialized")
	return nil
}

// Info - информационное сообщение.
func Info(msg string, keyvals ...any) {
	write(zerolog.InfoLevel, msg, keyvals...)
}

// Error - сообщение об ошибке.
func Error(msg string, keyvals ...any) {
	write(zerolog.ErrorLevel, msg, keyvals...)
}

// Debug - отладочное сообщение.
func Debug(msg string, keyvals ...any) {
	write(zerolog.DebugLevel, msg, keyvals...)
}

// Warn - предупреждение.
func Warn(msg string, keyvals ...any) {
	write(zerolog.WarnLevel, msg, keyvals...)
}

// write превращает пары key/value в поля zerolog.
//
// Нечётный хвост пишется под ключом "!BADKEY", как это делает slog.
func write(level zerolog.Level, msg string, keyvals ...any) {
	logMutex.RLock()
	l := logger
	logMutex.RUnlock()

	ev := l.WithLevel(level)
	if ev == nil {
		return
	}
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 >= len(keyvals) {
			ev = ev.Interface("!BADKEY", keyvals[i])
			break
		}
		key := fmt.Sprint(keyvals[i])
		switch v := keyvals[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		case string:
			ev = ev.Str(key, v)
		case int:
			ev = ev.Int(key, v)
		case int64:
			ev = ev.Int64(key, v)
		case bool:
			ev = ev.Bool(key, v)
		case time.Duration:
			ev = ev.Dur(key, v)
		case fmt.Stringer:
			ev = ev.Stringer(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

// Close закрывает лог-файл и возвращает логгер в no-op режим.
//
// Вызывается через defer в main().
func Close() {
	logMutex.Lock()
	defer logMutex.Unlock()
	closeFileLocked()
	logger = zerolog.Nop()
}

func closeFileLocked() {
	if logFile == nil {
		return
	}
	if err := logFile.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "[LOGGER WARNING: Close failed: %v]\n", err)
	}
	logFile = nil
}
