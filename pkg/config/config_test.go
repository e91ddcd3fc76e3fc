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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	conf := NewConfig()
	configFile := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
[log]
level = "debug"
slow-threshold = 50
general-log = true

[routine]
max-reprepare-attempts = 5
max-recursion-depth = 10
mem-quota-per-call = 1048576
binlog-format = "row"
cache-ttl = "30s"

[executor]
dsn = "root@tcp(127.0.0.1:4000)/test"
conn-max-lifetime = "5m"
`), 0644))
	require.NoError(t, conf.Load(configFile))
	require.NoError(t, conf.Valid())

	require.Equal(t, "debug", conf.Log.Level)
	require.Equal(t, uint64(50), conf.Log.SlowThreshold)
	require.Equal(t, 5, conf.Routine.MaxReprepareAttempts)
	require.Equal(t, 10, conf.Routine.MaxRecursionDepth)
	require.Equal(t, ByteSize(1048576), conf.Routine.MemQuotaPerCall)
	require.Equal(t, BinlogFormatRow, conf.Routine.BinlogFormat)
	require.Equal(t, 30*time.Second, conf.Routine.CacheTTL.Duration)
	require.Equal(t, 5*time.Minute, conf.Executor.ConnMaxLifetime.Duration)
	// untouched keys keep their defaults
	require.Equal(t, 64, conf.Routine.MaxErrorCount)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(configFile, []byte("[routine]\nunknown-key = 1\n"), 0644))
	err := NewConfig().Load(configFile)
	require.ErrorContains(t, err, "routine.unknown-key")
}

func TestByteSize(t *testing.T) {
	conf := NewConfig()
	configFile := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(configFile, []byte("[routine]\nmem-quota-per-call = \"64MiB\"\nmem-quota-per-session = 4096\n"), 0644))
	require.NoError(t, conf.Load(configFile))
	require.Equal(t, ByteSize(64<<20), conf.Routine.MemQuotaPerCall)
	require.Equal(t, ByteSize(4096), conf.Routine.MemQuotaPerSession)

	require.NoError(t, os.WriteFile(configFile, []byte("[routine]\nmem-quota-per-call = \"lots\"\n"), 0644))
	require.Error(t, NewConfig().Load(configFile))

	text, err := ByteSize(2048).MarshalText()
	require.NoError(t, err)
	require.Equal(t, "2KiB", string(text))
}

func TestValid(t *testing.T) {
	conf := NewConfig()
	require.NoError(t, conf.Valid())
	require.Equal(t, 3, conf.Routine.MaxReprepareAttempts)

	conf.Routine.BinlogFormat = "mixed"
	require.Error(t, conf.Valid())
	conf.Routine.BinlogFormat = BinlogFormatStatement
	conf.Routine.MaxRecursionDepth = 256
	require.Error(t, conf.Valid())
	conf.Routine.MaxRecursionDepth = 0
	conf.Routine.MemQuotaPerCall = -1
	require.Error(t, conf.Valid())
	conf.Routine.MemQuotaPerCall = 0
	conf.Routine.MemQuotaPerSession = -1
	require.Error(t, conf.Valid())
}

func TestUpdateGlobal(t *testing.T) {
	restore := RestoreFunc()
	defer restore()
	UpdateGlobal(func(conf *Config) {
		conf.Routine.MaxRecursionDepth = 7
	})
	require.Equal(t, 7, GetGlobalConfig().Routine.MaxRecursionDepth)
	restore()
	require.Equal(t, 0, GetGlobalConfig().Routine.MaxRecursionDepth)
}

func TestToLogConfig(t *testing.T) {
	l := &Log{Level: "warn", Format: "json", GeneralLogFile: "general.log"}
	require.Empty(t, l.ToLogConfig().GeneralLogFile)
	l.GeneralLog = true
	lc := l.ToLogConfig()
	require.Equal(t, "general.log", lc.GeneralLogFile)
	require.Equal(t, "warn", lc.Level)
}
