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

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb-routine/pkg/util/logutil"
	"go.uber.org/atomic"
)

// Binlog formats accepted by [routine] binlog-format.
const (
	BinlogFormatStatement = "statement"
	BinlogFormatRow       = "row"
)

// Config contains configuration options.
type Config struct {
	Log      Log      `toml:"log" json:"log"`
	Routine  Routine  `toml:"routine" json:"routine"`
	Executor Executor `toml:"executor" json:"executor"`
}

// Log is the log section of config.
type Log struct {
	// Log level.
	Level string `toml:"level" json:"level"`
	// Log format. one of json, text, or console.
	Format string `toml:"format" json:"format"`
	// Disable automatic timestamps in output.
	DisableTimestamp bool `toml:"disable-timestamp" json:"disable-timestamp"`
	// File log config.
	File logutil.FileLogConfig `toml:"file" json:"file"`

	SlowQueryFile  string `toml:"slow-query-file" json:"slow-query-file"`
	SlowThreshold  uint64 `toml:"slow-threshold" json:"slow-threshold"`
	GeneralLog     bool   `toml:"general-log" json:"general-log"`
	GeneralLogFile string `toml:"general-log-file" json:"general-log-file"`
	QueryLogMaxLen uint64 `toml:"query-log-max-len" json:"query-log-max-len"`
}

// Routine is the routine section of the config.
type Routine struct {
	// MaxReprepareAttempts is the number of re-preparations a single
	// instruction may go through after its first attempt.
	MaxReprepareAttempts int `toml:"max-reprepare-attempts" json:"max-reprepare-attempts"`
	// MaxRecursionDepth is the procedure recursion limit, 0 forbids recursion.
	MaxRecursionDepth int `toml:"max-recursion-depth" json:"max-recursion-depth"`
	// MemQuotaPerCall limits the bytes held by the variables of one
	// invocation, 0 means no limit.
	MemQuotaPerCall ByteSize `toml:"mem-quota-per-call" json:"mem-quota-per-call"`
	// MemQuotaPerSession limits the bytes held by all running invocations of
	// a session and the cursor rows they buffer, 0 means no limit.
	MemQuotaPerSession ByteSize `toml:"mem-quota-per-session" json:"mem-quota-per-session"`
	// MaxErrorCount is the number of conditions a diagnostics area retains.
	MaxErrorCount int    `toml:"max-error-count" json:"max-error-count"`
	BinlogFormat  string `toml:"binlog-format" json:"binlog-format"`
	// DivisionByZeroError turns division by zero warnings into errors.
	DivisionByZeroError bool     `toml:"division-by-zero-error" json:"division-by-zero-error"`
	CacheCapacity       uint64   `toml:"cache-capacity" json:"cache-capacity"`
	CacheTTL            Duration `toml:"cache-ttl" json:"cache-ttl"`
}

// Executor is the executor section of the config. It describes the server
// that statements are forwarded to by the runner.
type Executor struct {
	DSN             string   `toml:"dsn" json:"dsn"`
	MaxOpenConns    int      `toml:"max-open-conns" json:"max-open-conns"`
	ConnMaxLifetime Duration `toml:"conn-max-lifetime" json:"conn-max-lifetime"`
}

// Duration is a time.Duration decoded from a TOML string such as "10m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return errors.Trace(err)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ByteSize is a byte count decoded from either an integer or a size string
// such as "64MiB".
type ByteSize int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	v, err := units.RAMInBytes(string(text))
	if err != nil {
		return errors.Trace(err)
	}
	*b = ByteSize(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(units.BytesSize(float64(b))), nil
}

var defaultConf = Config{
	Log: Log{
		Level:          "info",
		Format:         logutil.DefaultLogFormat,
		File:           logutil.NewFileLogConfig(logutil.DefaultLogMaxSize),
		SlowThreshold:  logutil.DefaultSlowThreshold,
		QueryLogMaxLen: logutil.DefaultQueryLogMaxLen,
	},
	Routine: Routine{
		MaxReprepareAttempts: 3,
		MaxRecursionDepth:    0,
		MaxErrorCount:        64,
		BinlogFormat:         BinlogFormatStatement,
		CacheCapacity:        256,
		CacheTTL:             Duration{10 * time.Minute},
	},
	Executor: Executor{
		MaxOpenConns:    4,
		ConnMaxLifetime: Duration{time.Hour},
	},
}

var globalConf atomic.Pointer[Config]

func init() {
	conf := defaultConf
	StoreGlobalConfig(&conf)
}

// NewConfig creates a new config instance with default value.
func NewConfig() *Config {
	conf := defaultConf
	return &conf
}

// GetGlobalConfig returns the global configuration for this process.
// It should store configuration from command line and configuration file.
// Other parts of the system can read the global configuration use this function.
// NOTE: This config should not be changed except in testing or reloading config.
func GetGlobalConfig() *Config {
	return globalConf.Load()
}

// StoreGlobalConfig stores a new config to the globalConf. It mostly uses in the test to avoid some data races.
func StoreGlobalConfig(config *Config) {
	globalConf.Store(config)
}

// UpdateGlobal updates the global config, and provide a restore function that can be used to restore to the original.
func UpdateGlobal(f func(conf *Config)) {
	g := GetGlobalConfig()
	newConf := *g
	f(&newConf)
	StoreGlobalConfig(&newConf)
}

// RestoreFunc gets a function that restore the config to the current value.
func RestoreFunc() (restore func()) {
	g := GetGlobalConfig()
	return func() {
		StoreGlobalConfig(g)
	}
}

// Load loads config options from a toml file.
func (c *Config) Load(confFile string) error {
	metaData, err := toml.DecodeFile(confFile, c)
	if err != nil {
		return errors.Trace(err)
	}
	if undecoded := metaData.Undecoded(); len(undecoded) > 0 {
		items := make([]string, 0, len(undecoded))
		for _, item := range undecoded {
			items = append(items, item.String())
		}
		return errors.Errorf("config file %s contained invalid configuration options: %s", confFile, strings.Join(items, ", "))
	}
	return nil
}

// Valid checks if this config is valid.
func (c *Config) Valid() error {
	if c.Routine.MaxReprepareAttempts < 0 {
		return fmt.Errorf("max-reprepare-attempts should not be negative")
	}
	if c.Routine.MaxRecursionDepth < 0 || c.Routine.MaxRecursionDepth > 255 {
		return fmt.Errorf("max-recursion-depth should be in [0, 255]")
	}
	if c.Routine.MaxErrorCount <= 0 {
		return fmt.Errorf("max-error-count should be positive")
	}
	switch strings.ToLower(c.Routine.BinlogFormat) {
	case BinlogFormatStatement, BinlogFormatRow:
	default:
		return fmt.Errorf("binlog-format should be one of %s, %s", BinlogFormatStatement, BinlogFormatRow)
	}
	if c.Routine.MemQuotaPerCall < 0 {
		return fmt.Errorf("mem-quota-per-call should not be negative")
	}
	if c.Routine.MemQuotaPerSession < 0 {
		return fmt.Errorf("mem-quota-per-session should not be negative")
	}
	if c.Executor.MaxOpenConns < 0 {
		return fmt.Errorf("max-open-conns should not be negative")
	}
	return nil
}

// ToLogConfig converts *Log to *logutil.LogConfig.
func (l *Log) ToLogConfig() *logutil.LogConfig {
	generalLogFile := ""
	if l.GeneralLog {
		generalLogFile = l.GeneralLogFile
	}
	return logutil.NewLogConfig(l.Level, l.Format, l.SlowQueryFile, generalLogFile, l.File, l.DisableTimestamp)
}
