// Copyright 2025 PingCAP, Inc.
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

package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pingcap/tidb-routine/pkg/config"
	"github.com/pingcap/tidb-routine/pkg/errno"
	"github.com/pingcap/tidb-routine/pkg/testkit"
	"github.com/stretchr/testify/require"
)

const routines = `
[[routine]]
type = "procedure"
name = "bump"

[[routine.param]]
name = "v"
type = "int"

[[routine.param]]
name = "r"
type = "int"
mode = "out"

[[routine.body]]
kind = "sql"
sql = "UPDATE t SET a = v WHERE id = 1"

[[routine.body]]
kind = "sql"
sql = "SELECT a FROM t WHERE id = 1"

[[routine.body]]
kind = "set"
name = "r"
expr = "v + 1"

[[routine]]
type = "procedure"
name = "careful"

[[routine.body]]
kind = "signal"
state = "01000"
message = "'careful now'"

[[routine]]
type = "function"
name = "twice"
returns = "bigint"

[[routine.param]]
name = "x"
type = "int"

[[routine.body]]
kind = "return"
expr = "x * 2"
`

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	defer config.RestoreFunc()()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestList(t *testing.T) {
	file := writeFile(t, "routines.toml", routines)
	out, err := runCommand(t, "list", "-f", file)
	require.NoError(t, err)
	require.Regexp(t, `^TYPE\s+NAME\s+PARAMETERS\s+RETURNS\n`, out)
	require.Regexp(t, `(?m)^PROCEDURE\s+bump\s+IN v \S+, OUT r \S+\s*$`, out)
	require.Regexp(t, `(?m)^PROCEDURE\s+careful\s*$`, out)
	require.Regexp(t, `(?m)^FUNCTION\s+twice\s+IN x \S+\s+bigint\s*$`, out)
}

func TestShowCode(t *testing.T) {
	file := writeFile(t, "routines.toml", routines)
	out, err := runCommand(t, "show-code", "-f", file, "--function", "--name", "TWICE")
	require.NoError(t, err)
	require.Equal(t, "0\tfreturn bigint (x@0 * 2)\n", out)

	_, err = runCommand(t, "show-code", "-f", file, "--name", "twice")
	testkit.RequireErrCode(t, err, errno.ErrSpDoesNotExist)

	_, err = runCommand(t, "show-code", "-f", file)
	require.Error(t, err)
}

func TestCallDryRun(t *testing.T) {
	file := writeFile(t, "routines.toml", routines)
	out, err := runCommand(t, "call", "-f", file, "--name", "bump", "--args", "5,null", "--dry-run")
	require.NoError(t, err)
	require.Equal(t,
		"UPDATE `t` SET `a`=NAME_CONST('v',5) WHERE `id`=1;\n"+
			"SELECT a FROM t WHERE id = 1;\n"+
			"r = 6\n",
		out)

	out, err = runCommand(t, "call", "-f", file, "--function", "--name", "twice", "--args", "21")
	require.NoError(t, err)
	require.Equal(t, "42\n", out)

	out, err = runCommand(t, "call", "-f", file, "--name", "careful", "--dry-run")
	require.NoError(t, err)
	require.Contains(t, out, "Warning")
	require.Contains(t, out, "careful now")

	_, err = runCommand(t, "call", "-f", file, "--name", "bump", "--args", "1", "--dry-run")
	testkit.RequireErrCode(t, err, errno.ErrSpWrongNoOfArgs)
}

func TestCallRemote(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	origin := openDB
	openDB = func(context.Context, config.Executor) (*sql.DB, error) {
		return db, nil
	}
	defer func() { openDB = origin }()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE `t` SET `a`=5 WHERE `id`=1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT a FROM t WHERE id = 1")).
		WillReturnRows(sqlmock.NewRows([]string{"a"}).AddRow("5"))
	mock.ExpectClose()

	file := writeFile(t, "routines.toml", routines)
	out, err := runCommand(t, "call", "-f", file, "--dsn", "root@tcp(127.0.0.1:4000)/test", "--name", "bump", "-a", "5,0")
	require.NoError(t, err)
	require.Equal(t, "a\n5\nr = 6\n", out)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = runCommand(t, "call", "-f", file, "--name", "bump", "-a", "5,0")
	require.ErrorContains(t, err, "--dsn")
}

func TestConfigFile(t *testing.T) {
	file := writeFile(t, "routines.toml", routines)
	cfg := writeFile(t, "config.toml", "[routine]\nmax-recursion-depth = 300\n")
	_, err := runCommand(t, "list", "-f", file, "-C", cfg)
	require.ErrorContains(t, err, "max-recursion-depth")

	cfg = writeFile(t, "config.toml", "[routine]\nunknown-option = 1\n")
	_, err = runCommand(t, "list", "-f", file, "-C", cfg)
	require.ErrorContains(t, err, "invalid configuration options")

	cfg = writeFile(t, "config.toml", "[log]\nlevel = \"warn\"\n[routine]\nbinlog-format = \"row\"\n")
	out, err := runCommand(t, "call", "-f", file, "-C", cfg, "--name", "bump", "--args", "5,null", "--dry-run")
	require.NoError(t, err)
	require.Contains(t, out, "UPDATE `t` SET `a`=5 WHERE `id`=1;\n")

	_, err = runCommand(t, "list")
	require.ErrorContains(t, err, "--file")
}

func TestParseArg(t *testing.T) {
	nullArg := parseArg("NULL")
	require.True(t, nullArg.IsNull())
	d := parseArg("-3")
	require.Equal(t, int64(-3), d.GetInt64())
	d = parseArg("1.5")
	require.Equal(t, 1.5, d.GetFloat64())
	d = parseArg("abc")
	require.Equal(t, "abc", d.GetString())
}
