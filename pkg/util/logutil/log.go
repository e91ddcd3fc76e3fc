// Copyright 2017 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	tlog "github.com/opentracing/opentracing-go/log"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultLogMaxSize is the default size of log files.
	DefaultLogMaxSize = 300 // MB
	// DefaultLogFormat is the default format of the log.
	DefaultLogFormat = "text"
	// DefaultSlowThreshold is the default slow statement threshold in millisecond.
	DefaultSlowThreshold = 300
	// DefaultQueryLogMaxLen is the default max length of the query in the log.
	DefaultQueryLogMaxLen = 4096
)

// Field names shared by every routine log entry.
const (
	LogFieldConn    = "conn"
	LogFieldRoutine = "routine"
)

// FileLogConfig serializes file log related config in toml/json.
type FileLogConfig struct {
	log.FileLogConfig
}

// NewFileLogConfig creates a FileLogConfig.
func NewFileLogConfig(maxSize uint) FileLogConfig {
	return FileLogConfig{FileLogConfig: log.FileLogConfig{MaxSize: int(maxSize)}}
}

// LogConfig is the logger setup. Statement logs share the main log unless a
// dedicated file is named for them.
type LogConfig struct {
	log.Config

	SlowQueryFile  string
	GeneralLogFile string
}

// NewLogConfig creates a LogConfig.
func NewLogConfig(level, format, slowQueryFile string, generalLogFile string, fileCfg FileLogConfig, disableTimestamp bool, opts ...func(*log.Config)) *LogConfig {
	c := &LogConfig{
		Config: log.Config{
			Level:            level,
			Format:           format,
			DisableTimestamp: disableTimestamp,
			File:             fileCfg.FileLogConfig,
		},
		SlowQueryFile:  slowQueryFile,
		GeneralLogFile: generalLogFile,
	}
	for _, opt := range opts {
		opt(&c.Config)
	}
	return c
}

type stmtLoggers struct {
	general *zap.Logger
	slow    *zap.Logger
}

var loggers atomic.Pointer[stmtLoggers]

func currentStmtLoggers() *stmtLoggers {
	if l := loggers.Load(); l != nil {
		return l
	}
	return &stmtLoggers{general: log.L(), slow: log.L()}
}

// InitLogger initializes the global logger and the statement loggers with cfg.
func InitLogger(cfg *LogConfig, opts ...zap.Option) error {
	opts = append(opts, zap.AddStacktrace(zapcore.FatalLevel))
	gl, props, err := log.InitLogger(&cfg.Config, opts...)
	if err != nil {
		return errors.Trace(err)
	}
	log.ReplaceGlobals(gl, props)

	general, err := newFileLogger(cfg, cfg.GeneralLogFile)
	if err != nil {
		return errors.Annotate(err, "general log")
	}
	slow, err := newFileLogger(cfg, cfg.SlowQueryFile)
	if err != nil {
		return errors.Annotate(err, "slow log")
	}
	loggers.Store(&stmtLoggers{general: general, slow: slow})
	return nil
}

func newFileLogger(cfg *LogConfig, filename string) (*zap.Logger, error) {
	if filename == "" {
		return log.L(), nil
	}
	sc := cfg.Config
	sc.File.Filename = filename
	l, _, err := log.InitLogger(&sc)
	return l, errors.Trace(err)
}

// SetLevel sets the zap logger's level.
func SetLevel(level string) error {
	l := zap.NewAtomicLevel()
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return errors.Trace(err)
	}
	log.SetLevel(l.Level())
	return nil
}

// StmtEntry describes one statement a routine sent to the executor.
type StmtEntry struct {
	ConnID  uint64
	Routine string
	IP      int
	SQL     string
	Cost    time.Duration
	Succ    bool
}

func (e *StmtEntry) fields(maxLen uint64) []zap.Field {
	return []zap.Field{
		zap.Uint64(LogFieldConn, e.ConnID),
		zap.String(LogFieldRoutine, e.Routine),
		zap.Int("ip", e.IP),
		zap.String("sql", FormatQuery(e.SQL, maxLen)),
	}
}

// LogGeneral writes e to the general log before the statement runs.
func LogGeneral(e *StmtEntry, maxLen uint64) {
	currentStmtLoggers().general.Info("GENERAL_LOG", e.fields(maxLen)...)
}

// LogSlow writes e to the slow log once the statement finished.
func LogSlow(e *StmtEntry, maxLen uint64) {
	fields := append(e.fields(maxLen), zap.Duration("cost_time", e.Cost), zap.Bool("succ", e.Succ))
	currentStmtLoggers().slow.Warn("slow routine statement", fields...)
}

var queryReplacer = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")

// FormatQuery flattens sql to one line and truncates it to maxLen bytes.
// A zero maxLen keeps the whole text.
func FormatQuery(sql string, maxLen uint64) string {
	if maxLen > 0 && uint64(len(sql)) > maxLen {
		sql = fmt.Sprintf("%s(len:%d)", sql[:maxLen], len(sql))
	}
	return queryReplacer.Replace(sql)
}

// QueryText is FormatQuery with the default length limit.
func QueryText(sql string) string {
	return FormatQuery(sql, DefaultQueryLogMaxLen)
}

type ctxLogKeyType struct{}

// CtxLogKey indicates the context key for logger
// public for test usage.
var CtxLogKey = ctxLogKeyType{}

// Logger gets a contextual logger from current context.
// contextual logger will output common fields from context.
func Logger(ctx context.Context) *zap.Logger {
	if ctxlogger, ok := ctx.Value(CtxLogKey).(*zap.Logger); ok {
		return ctxlogger
	}
	return log.L()
}

// BgLogger returns the logger for work not bound to a session.
func BgLogger() *zap.Logger {
	return log.L()
}

// WithConnID attaches connID to context.
func WithConnID(ctx context.Context, connID uint64) context.Context {
	return context.WithValue(ctx, CtxLogKey, Logger(ctx).With(zap.Uint64(LogFieldConn, connID)))
}

// WithRoutine attaches the qualified routine name to context.
func WithRoutine(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, CtxLogKey, Logger(ctx).With(zap.String(LogFieldRoutine, name)))
}

// Eventf records event in current tracing span with format support.
func Eventf(ctx context.Context, format string, args ...any) {
	if span := opentracing.SpanFromContext(ctx); span != nil && span.Tracer() != nil {
		span.LogFields(tlog.String("event", fmt.Sprintf(format, args...)))
	}
}
