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

package sqlexec_test

import (
	"bytes"
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/pingcap/tidb-routine/pkg/config"
	"github.com/pingcap/tidb-routine/pkg/errno"
	"github.com/pingcap/tidb-routine/pkg/sp"
	"github.com/pingcap/tidb-routine/pkg/sp/compile"
	"github.com/pingcap/tidb-routine/pkg/testkit"
	"github.com/pingcap/tidb-routine/pkg/types"
	"github.com/pingcap/tidb-routine/pkg/util/sqlexec"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, sink sqlexec.RowSink) (*sp.Session, sqlmock.Sqlmock) {
	_, sess, mock := newExecutor(t, sink, config.NewConfig())
	return sess, mock
}

func newExecutor(t *testing.T, sink sqlexec.RowSink, cfg *config.Config) (*sqlexec.RemoteExecutor, *sp.Session, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	exec, err := sqlexec.NewRemoteExecutor(context.Background(), db, sink)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })
	return exec, sp.NewSession(exec, compile.NewLibrary(), sp.WithConfig(cfg)), mock
}

func call(sess *sp.Session, r *sp.Routine, args ...any) ([]types.Datum, error) {
	outs := make([]types.Datum, len(args))
	spArgs := make([]sp.Arg, len(args))
	for i, arg := range args {
		i := i
		spArgs[i] = sp.Arg{Value: types.NewDatum(arg), Out: func(d types.Datum) error {
			outs[i] = d
			return nil
		}}
	}
	err := sess.CallProcedure(context.Background(), r, spArgs)
	return outs, err
}

func TestRemoteStatementsAndCursor(t *testing.T) {
	sess, mock := newSession(t, nil)
	r := testkit.MustCompile(t, testkit.Procedure("p",
		testkit.Params(testkit.In("v", "int"), testkit.Out("total", "int"), testkit.Out("last", "varchar(10)")),
		testkit.Block(
			testkit.Declare("n", "int", ""),
			testkit.Declare("done", "int", "0"),
			testkit.DeclareCursor("c", "SELECT id, name FROM t"),
			testkit.ContinueHandler(testkit.Conds("NOT FOUND"), testkit.Set("done", "1")),
			testkit.SQL("UPDATE t SET a = v WHERE id = 1"),
			testkit.Set("total", "0"),
			testkit.Open("c"),
			testkit.Repeat("l", "done = 1",
				testkit.Fetch("c", "n", "last"),
				testkit.If("done = 0", testkit.Stmts(testkit.Set("total", "total + n"))),
			),
			testkit.Close("c"),
		)))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE `t` SET `a`=5 WHERE `id`=1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM t")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "a").AddRow(int64(2), "b"))

	outs, err := call(sess, r, 5, nil, nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), outs[1].GetInt64())
	require.Equal(t, "b", outs[2].GetString())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoteStatementsBetweenFetches(t *testing.T) {
	sess, mock := newSession(t, nil)
	r := testkit.MustCompile(t, testkit.Procedure("p",
		testkit.Params(testkit.Out("total", "int")),
		testkit.Block(
			testkit.Declare("n", "int", ""),
			testkit.Declare("done", "int", "0"),
			testkit.DeclareCursor("c", "SELECT id FROM t"),
			testkit.ContinueHandler(testkit.Conds("NOT FOUND"), testkit.Set("done", "1")),
			testkit.Set("total", "0"),
			testkit.Open("c"),
			testkit.Repeat("l", "done = 1",
				testkit.Fetch("c", "n"),
				testkit.If("done = 0", testkit.Stmts(
					testkit.SQL("INSERT INTO seen VALUES (n)"),
					testkit.Set("total", "total + n"),
				)),
			),
			testkit.Close("c"),
		)))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM t")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2))).
		RowsWillBeClosed()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `seen` VALUES (1)")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `seen` VALUES (2)")).WillReturnResult(sqlmock.NewResult(0, 1))

	outs, err := call(sess, r, nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), outs[0].GetInt64())
	require.NoError(t, mock.ExpectationsWereMet())
	require.Zero(t, sess.MemoryTracker().BytesConsumed())
}

func TestRemoteQueryBuffersRows(t *testing.T) {
	exec, sess, mock := newExecutor(t, nil, config.NewConfig())
	ctx := context.Background()
	mock.ExpectQuery("SELECT id FROM t").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)).AddRow(int64(8))).
		RowsWillBeClosed()

	rs, err := exec.Query(ctx, sess, &sp.Stmt{Text: "SELECT id FROM t"})
	require.NoError(t, err)
	// The server side result set is already consumed and closed.
	require.NoError(t, mock.ExpectationsWereMet())
	require.Positive(t, sess.MemoryTracker().BytesConsumed())
	require.Equal(t, 1, rs.Columns())

	row, err := rs.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(7), row[0].GetInt64())
	row, err = rs.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(8), row[0].GetInt64())
	row, err = rs.Next(ctx)
	require.NoError(t, err)
	require.Nil(t, row)
	require.NoError(t, rs.Close())
	require.Zero(t, sess.MemoryTracker().BytesConsumed())

	cfg := config.NewConfig()
	cfg.Routine.MemQuotaPerSession = 64
	exec, sess, mock = newExecutor(t, nil, cfg)
	mock.ExpectQuery("SELECT id FROM t").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))
	_, err = exec.Query(ctx, sess, &sp.Stmt{Text: "SELECT id FROM t"})
	testkit.RequireErrCode(t, err, errno.ErrOutOfResources)
	require.Zero(t, sess.MemoryTracker().BytesConsumed())
}

func TestRemoteTypedColumns(t *testing.T) {
	sess, mock := newSession(t, nil)
	r := testkit.MustCompile(t, testkit.Procedure("p",
		testkit.Params(testkit.Out("n", "bigint"), testkit.Out("d", "decimal(10,2)"), testkit.Out("s", "varchar(10)")),
		testkit.Block(
			testkit.DeclareCursor("c", "SELECT cn, cd, cs FROM t"),
			testkit.Open("c"),
			testkit.Fetch("c", "n", "d", "s"),
			testkit.Close("c"),
		)))

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("cn").OfType("BIGINT", int64(0)),
		sqlmock.NewColumn("cd").OfType("DECIMAL", ""),
		sqlmock.NewColumn("cs").OfType("VARCHAR", ""),
	).AddRow([]byte("42"), []byte("3.50"), nil)
	mock.ExpectQuery("SELECT cn, cd, cs FROM t").WillReturnRows(rows)

	outs, err := call(sess, r, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, int64(42), outs[0].GetInt64())
	f, err := outs[1].ToFloat64()
	require.NoError(t, err)
	require.InDelta(t, 3.5, f, 1e-9)
	require.True(t, outs[2].IsNull())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoteErrors(t *testing.T) {
	sess, mock := newSession(t, nil)
	r := testkit.MustCompile(t, testkit.Procedure("p",
		testkit.Params(testkit.Out("h", "int")),
		testkit.Block(
			testkit.ContinueHandler(testkit.Conds("SQLSTATE '42S02'"), testkit.Set("h", "1")),
			testkit.SQL("DELETE FROM missing"),
		)))
	q := testkit.MustCompile(t, testkit.Procedure("q", nil, testkit.SQL("DELETE FROM gone")))

	missing := &mysql.MySQLError{Number: errno.ErrNoSuchTable, SQLState: [5]byte{'4', '2', 'S', '0', '2'}, Message: "Table 'test.missing' doesn't exist"}
	mock.ExpectExec("DELETE FROM missing").WillReturnError(missing)
	outs, err := call(sess, r, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), outs[0].GetInt64())

	mock.ExpectExec("DELETE FROM gone").WillReturnError(&mysql.MySQLError{Number: 1451, Message: "Cannot delete or update a parent row"})
	_, err = call(sess, q)
	testkit.RequireErrCode(t, err, 1451)
	require.Equal(t, uint16(1451), sess.Diagnostics().ErrorStatus().Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoteReprepare(t *testing.T) {
	sess, mock := newSession(t, nil)
	r := testkit.MustCompile(t, testkit.Procedure("p", nil, testkit.SQL("UPDATE t SET a = 1")))
	stale := &mysql.MySQLError{Number: errno.ErrNeedReprepare, Message: "Prepared statement needs to be re-prepared"}

	// Without an observer the server error is returned as is.
	mock.ExpectExec("UPDATE").WillReturnError(stale)
	_, err := call(sess, r)
	testkit.RequireErrCode(t, err, errno.ErrNeedReprepare)

	mock.ExpectExec("UPDATE").WillReturnError(stale)
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	_, err = call(sess, r)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoteRowSink(t *testing.T) {
	var got [][]string
	sess, mock := newSession(t, func(columns []string, row []types.Datum) error {
		s, err := row[0].ToString()
		got = append(got, []string{columns[0], s})
		return err
	})
	r := testkit.MustCompile(t, testkit.Procedure("p", nil, testkit.SQL("SELECT name FROM t")))

	mock.ExpectQuery("SELECT name FROM t").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("x").AddRow("y"))
	_, err := call(sess, r)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"name", "x"}, {"name", "y"}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenDBBadDSN(t *testing.T) {
	_, err := sqlexec.OpenDB(context.Background(), config.Executor{DSN: "not a dsn"})
	require.ErrorContains(t, err, "parse executor dsn")
}

func TestDryRun(t *testing.T) {
	var buf bytes.Buffer
	sess := sp.NewSession(sqlexec.NewDryRunExecutor(&buf), compile.NewLibrary(), sp.WithConfig(config.NewConfig()))
	r := testkit.MustCompile(t, testkit.Procedure("p",
		testkit.Params(testkit.In("v", "int"), testkit.Out("msg", "varchar(10)")),
		testkit.Block(
			testkit.Declare("x", "int", ""),
			testkit.Declare("y", "int", ""),
			testkit.DeclareCursor("c", "SELECT a, b FROM t WHERE id = v"),
			testkit.ExitHandler(testkit.Conds("NOT FOUND"), testkit.Set("msg", "'empty'")),
			testkit.SQL("INSERT INTO t VALUES (v)"),
			testkit.Open("c"),
			testkit.Fetch("c", "x", "y"),
		)))

	outs, err := call(sess, r, 7, nil)
	require.NoError(t, err)
	require.Equal(t, "empty", outs[1].GetString())
	require.Equal(t,
		"INSERT INTO `t` VALUES (NAME_CONST('v',7));\n"+
			"SELECT `a`,`b` FROM `t` WHERE `id`=NAME_CONST('v',7);\n",
		buf.String())
}
