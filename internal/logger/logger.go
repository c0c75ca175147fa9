package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"log/slog"
)

var (
	levelVar   slog.LevelVar
	loggerMu   sync.RWMutex
	baseLogger *slog.Logger
)

func init() {
	levelVar.Set(slog.LevelInfo)
	baseLogger = newLogger(os.Stdout, false)
}

func newLogger(w io.Writer, jsonFormat bool) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: &levelVar}
	if jsonFormat {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetOutput 重定向日志输出，format 为 "json" 时使用结构化编码。
func SetOutput(w io.Writer, format string) {
	loggerMu.Lock()
	baseLogger = newLogger(w, strings.EqualFold(strings.TrimSpace(format), "json"))
	loggerMu.Unlock()
}

func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info":
		levelVar.Set(slog.LevelInfo)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

func activeLogger() *slog.Logger {
	loggerMu.RLock()
	l := baseLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if baseLogger == nil {
		baseLogger = newLogger(os.Stdout, false)
	}
	return baseLogger
}

func Debugf(format string, v ...any) {
	activeLogger().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	activeLogger().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	activeLogger().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	activeLogger().Error(fmt.Sprintf(format, v...))
}

// Logger 是带组件名前缀的作用域日志器，worker、执行器等
// 各持一个，便于按组件过滤。
type Logger struct {
	component string
}

// Named 返回指定组件名的作用域日志器。
func Named(component string) *Logger {
	return &Logger{component: strings.TrimSpace(component)}
}

func (l *Logger) msg(format string, v ...any) string {
	s := fmt.Sprintf(format, v...)
	if l == nil || l.component == "" {
		return s
	}
	return "[" + l.component + "] " + s
}

func (l *Logger) Debugf(format string, v ...any) {
	activeLogger().Debug(l.msg(format, v...))
}

func (l *Logger) Infof(format string, v ...any) {
	activeLogger().Info(l.msg(format, v...))
}

func (l *Logger) Warnf(format string, v ...any) {
	activeLogger().Warn(l.msg(format, v...))
}

func (l *Logger) Errorf(format string, v ...any) {
	activeLogger().Error(l.msg(format, v...))
}
