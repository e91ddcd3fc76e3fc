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

package sp_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/opentracing/basictracer-go"
	"github.com/opentracing/opentracing-go"
	"github.com/pingcap/tidb-routine/pkg/config"
	"github.com/pingcap/tidb-routine/pkg/errno"
	"github.com/pingcap/tidb-routine/pkg/sp"
	"github.com/pingcap/tidb-routine/pkg/sp/compile"
	. "github.com/pingcap/tidb-routine/pkg/testkit"
	"github.com/pingcap/tidb-routine/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestStoredFunction(t *testing.T) {
	tk := NewTestKit(t, "")
	tk.MustAddRoutine(Function("add1", "int", Params(In("a", "int")),
		Return("a + 1"),
	))
	tk.MustAddRoutine(Function("pos", "int", Params(In("a", "int")),
		If("a > 0", Stmts(Return("1"))),
	))
	tk.MustAddRoutine(Procedure("p", Params(Out("r", "int")),
		Set("r", "add1(41) + 0"),
	))

	add1Res := tk.MustCallFunction("add1", 41)
	require.Equal(t, int64(42), add1Res.GetInt64())
	posRes := tk.MustCallFunction("pos", 5)
	require.Equal(t, int64(1), posRes.GetInt64())
	_, err := tk.CallFunction("pos", 0)
	RequireErrCode(t, err, errno.ErrSpNoReturnEnd)

	outs := tk.MustCall("p", nil)
	require.Equal(t, int64(42), outs[0].GetInt64())
}

func TestFunctionWithoutReturn(t *testing.T) {
	_, err := compile.Compile(Function("f", "int", nil, SQL("UPDATE t SET a = 1")))
	RequireErrCode(t, err, errno.ErrSpNoReturn)

	_, err = compile.Compile(Procedure("p", nil, Return("1")))
	RequireErrCode(t, err, errno.ErrSpBadReturn)
}

func TestFunctionReturnConversion(t *testing.T) {
	tk := NewTestKit(t, "")
	tk.MustAddRoutine(Function("short", "varchar(3)", nil, Return("'abcdef'")))

	_, err := tk.CallFunction("short")
	RequireErrCode(t, err, errno.ErrDataTooLong)
}

func TestRecursion(t *testing.T) {
	tk := NewTestKit(t, "")
	tk.MustAddRoutine(Function("f", "int", Params(In("n", "int")),
		If("n <= 0", Stmts(Return("0"))),
		Return("f(n - 1) + 1"),
	))
	tk.MustAddRoutine(Procedure("r", Params(In("n", "int"), InOut("acc", "int")),
		If("n > 0", Stmts(
			Set("acc", "acc + n"),
			Call("r", "n - 1, acc"),
		)),
	))

	_, err := tk.CallFunction("f", 3)
	RequireErrCode(t, err, errno.ErrSpNoRecursion)

	tk.MustGetErrCode("r", errno.ErrSpRecursionLimit, 3, 0)

	cfg := config.NewConfig()
	cfg.Routine.MaxRecursionDepth = 5
	tk.RefreshSession(sp.WithConfig(cfg))
	outs := tk.MustCall("r", 3, 0)
	require.Equal(t, int64(6), outs[1].GetInt64())
}

func TestCallArguments(t *testing.T) {
	tk := NewTestKit(t, "")
	tk.MustAddRoutine(Procedure("inner", Params(Out("r", "int")), Set("r", "7")))
	tk.MustAddRoutine(Procedure("outer", Params(Out("v", "int")),
		Block(
			Call("inner", "v"),
			Set("v", "v + 1"),
		)))
	tk.MustAddRoutine(Procedure("literal", nil, Call("inner", "1")))
	tk.MustAddRoutine(Procedure("short", nil, Call("inner", "")))
	tk.MustAddRoutine(Procedure("unknown", nil, Call("nope", "")))
	tk.MustAddRoutine(Procedure("user_var", nil, Call("inner", "@out")))

	outs := tk.MustCall("outer", nil)
	require.Equal(t, int64(8), outs[0].GetInt64())

	tk.MustGetErrCode("literal", errno.ErrSpNotVarArg)
	tk.MustGetErrCode("short", errno.ErrSpWrongNoOfArgs)
	tk.MustGetErrCode("unknown", errno.ErrSpDoesNotExist)
	tk.MustGetErrCode("inner", errno.ErrSpWrongNoOfArgs)

	tk.MustCall("user_var")
	v, ok := tk.Session().GetUserVar("out")
	require.True(t, ok)
	require.Equal(t, int64(7), v.GetInt64())
}

func TestOutParametersOnlyOnSuccess(t *testing.T) {
	tk := NewTestKit(t, "")
	tk.Executor().OnExec("missing").Fail(missingTable())
	tk.MustAddRoutine(Procedure("p", Params(InOut("x", "int")),
		Block(
			Set("x", "x * 10"),
			SQL("DELETE FROM missing"),
		)))

	outs, err := tk.Call("p", 4)
	RequireErrCode(t, err, errno.ErrNoSuchTable)
	require.True(t, outs[0].IsNull())
}

func TestKill(t *testing.T) {
	tk := NewTestKit(t, "")
	tk.Executor().OnExec("slow").Do(func(_ context.Context, sess *sp.Session, _ *sp.Stmt) error {
		sess.Kill()
		return nil
	})
	tk.MustAddRoutine(Procedure("p", nil,
		Block(
			ContinueHandler(Conds("SQLEXCEPTION"), SQL("INSERT INTO log VALUES (1)")),
			SQL("UPDATE slow SET a = 1"),
			SQL("UPDATE t SET a = 2"),
		)))
	tk.MustAddRoutine(Procedure("q", Params(Out("x", "int")), Set("x", "1")))

	tk.MustGetErrCode("p", errno.ErrQueryInterrupted)
	require.Equal(t, []string{"UPDATE slow SET a = 1"}, tk.Executor().Executed())

	// The flag is cleared when the interrupted call returns.
	outs := tk.MustCall("q", nil)
	require.Equal(t, int64(1), outs[0].GetInt64())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tk.CallWithContext(ctx, "q", nil)
	RequireErrCode(t, err, errno.ErrQueryInterrupted)
}

func TestTrigger(t *testing.T) {
	tk := NewTestKit(t, "")
	tk.MustAddRoutine(Trigger("double", Set("NEW.b", "NEW.a * 2")))
	tk.MustAddRoutine(Trigger("old_on_insert", Set("NEW.b", "OLD.a")))
	tk.MustAddRoutine(Trigger("missing_column", Set("NEW.c", "1")))
	ctx := context.Background()

	rows := &sp.TriggerRows{
		Columns: []string{"a", "b"},
		New:     []types.Datum{types.NewIntDatum(5), {}},
		Event:   "INSERT",
	}
	require.NoError(t, tk.Session().FireTrigger(ctx, tk.Routine(sp.TypeTrigger, "double"), rows))
	require.Equal(t, int64(10), rows.New[1].GetInt64())

	err := tk.Session().FireTrigger(ctx, tk.Routine(sp.TypeTrigger, "old_on_insert"), rows)
	RequireErrCode(t, err, errno.ErrTrgNoSuchRowInTrg)

	err = tk.Session().FireTrigger(ctx, tk.Routine(sp.TypeTrigger, "missing_column"), rows)
	RequireErrCode(t, err, errno.ErrBadField)

	_, err = compile.Compile(Procedure("p", nil, Set("NEW.a", "1")))
	RequireErrCode(t, err, errno.ErrBadField)
}

func TestCaseStatement(t *testing.T) {
	tk := NewTestKit(t, "")
	tk.MustAddRoutine(Procedure("simple", Params(In("v", "int"), Out("r", "varchar(10)")),
		&compile.Stmt{
			Kind:  "case",
			Value: "v",
			Whens: []*compile.When{
				{Expr: "1", Then: Stmts(Set("r", "'one'"))},
				{Expr: "2", Then: Stmts(Set("r", "'two'"))},
			},
		}))
	tk.MustAddRoutine(Procedure("searched", Params(In("v", "int"), Out("r", "varchar(10)")),
		&compile.Stmt{
			Kind: "case",
			Whens: []*compile.When{
				{Expr: "v < 0", Then: Stmts(Set("r", "'neg'"))},
			},
			Else: Stmts(Set("r", "'other'")),
		}))

	outs := tk.MustCall("simple", 2, nil)
	require.Equal(t, "two", outs[1].GetString())
	tk.MustGetErrCode("simple", errno.ErrSpCaseNotFound, 3, nil)

	outs = tk.MustCall("searched", -1, nil)
	require.Equal(t, "neg", outs[1].GetString())
	outs = tk.MustCall("searched", 1, nil)
	require.Equal(t, "other", outs[1].GetString())
}

func TestLoopsAndLabels(t *testing.T) {
	tk := NewTestKit(t, "")
	tk.MustAddRoutine(Procedure("p", Params(Out("s", "int")),
		Block(
			Declare("i", "int", "0"),
			Set("s", "0"),
			Loop("l",
				Set("i", "i + 1"),
				If("i > 10", Stmts(Leave("l"))),
				If("i % 2 = 0", Stmts(Iterate("l"))),
				Set("s", "s + i"),
			),
		)))
	tk.MustAddRoutine(Procedure("w", Params(InOut("n", "int")),
		LabeledBlock("b",
			While("", "n < 100",
				Set("n", "n * 2"),
				If("n = 64", Stmts(Leave("b"))),
			),
			Set("n", "-1"),
		)))

	outs := tk.MustCall("p", nil)
	require.Equal(t, int64(25), outs[0].GetInt64())
	outs = tk.MustCall("w", 1)
	require.Equal(t, int64(64), outs[0].GetInt64())
	outs = tk.MustCall("w", 3)
	require.Equal(t, int64(-1), outs[0].GetInt64())
}

func TestStatementRewriting(t *testing.T) {
	tk := NewTestKit(t, "")
	tk.MustAddRoutine(Procedure("p", Params(In("v", "int"), In("s", "varchar(10)")),
		Block(
			SQL("UPDATE t SET name = s WHERE id = v"),
			SQL("UPDATE t SET name = 'x' WHERE t.v = 1"),
		)))

	tk.MustCall("p", 5, "it's")
	executed := tk.Executor().Executed()
	require.Len(t, executed, 2)
	require.Contains(t, executed[0], "`id`=5")
	require.Contains(t, executed[0], `'it\'s'`)
	logged := tk.Executor().Logged()
	require.Contains(t, logged[0], "NAME_CONST('v',5)")
	require.Contains(t, logged[0], `NAME_CONST('s','it\'s')`)
	// Qualified names are columns.
	require.Equal(t, "UPDATE t SET name = 'x' WHERE t.v = 1", executed[1])

	cfg := config.NewConfig()
	cfg.Routine.BinlogFormat = config.BinlogFormatRow
	tk.RefreshSession(sp.WithConfig(cfg))
	tk.MustCall("p", 5, "a")
	logged = tk.Executor().Logged()
	require.NotContains(t, logged[2], "NAME_CONST")
	require.Equal(t, tk.Executor().Executed()[2], logged[2])
}

func TestReprepare(t *testing.T) {
	newKit := func() *TestKit {
		tk := NewTestKit(t, "")
		tk.MustAddRoutine(Procedure("p", nil, SQL("UPDATE t SET a = 1")))
		return tk
	}

	tk := newKit()
	tk.MustCall("p")
	require.Len(t, tk.Executor().Executed(), 1)
	tk.Executor().SetStale(-1)
	tk.MustGetErrCode("p", errno.ErrNeedReprepare)
	require.Len(t, tk.Executor().Executed(), 5)

	tk = newKit()
	tk.MustCall("p")
	tk.Executor().SetStale(1)
	tk.MustCall("p")
	require.Len(t, tk.Executor().Executed(), 3)

	// The first execution of a tree never retries.
	tk = newKit()
	tk.Executor().SetStale(-1)
	tk.MustCall("p")
	require.Len(t, tk.Executor().Executed(), 1)
}

func TestTypedAssignment(t *testing.T) {
	tk := NewTestKit(t, "")
	tk.MustAddRoutine(Procedure("p", Params(Out("x", "tinyint")), Set("x", "1000")))
	tk.MustAddRoutine(Procedure("q", Params(Out("x", "int")),
		Block(
			ContinueHandler(Conds("SQLEXCEPTION")),
			Set("x", "5"),
			Set("x", "(SELECT a FROM missing)"),
		)))

	tk.MustGetErrCode("p", errno.ErrWarnDataOutOfRange, nil)

	outs := tk.MustCall("q", nil)
	require.True(t, outs[0].IsNull())
}

func TestSessionMemoryQuota(t *testing.T) {
	tk := NewTestKit(t, "")
	cfg := config.NewConfig()
	cfg.Routine.MemQuotaPerSession = 200
	tk.RefreshSession(sp.WithConfig(cfg))
	long := "'" + strings.Repeat("a", 100) + "'"
	tk.MustAddRoutine(Procedure("q", nil, Block(
		Declare("s", "varchar(200)", ""),
		Set("s", long),
	)))
	tk.MustAddRoutine(Procedure("p", nil, Block(
		Declare("s", "varchar(200)", ""),
		Set("s", long),
		Call("q", ""),
	)))

	tk.MustCall("q")
	tk.MustGetErrCode("p", errno.ErrOutOfResources)
	require.Zero(t, tk.Session().MemoryTracker().BytesConsumed())
}

type spanRecorder func(sp basictracer.RawSpan)

func (r spanRecorder) RecordSpan(sp basictracer.RawSpan) {
	r(sp)
}

func TestTracing(t *testing.T) {
	tk := NewTestKit(t, "")
	tk.MustAddRoutine(Procedure("traced", Params(Out("r", "int")), Block(
		ContinueHandler(Conds("SQLSTATE '45000'"), Set("r", "1")),
		Signal("45000", 0, "'x'"),
	)))

	var spans []basictracer.RawSpan
	opts := basictracer.DefaultOptions()
	opts.ShouldSample = func(uint64) bool { return true }
	opts.Recorder = spanRecorder(func(sp basictracer.RawSpan) { spans = append(spans, sp) })
	root := basictracer.NewWithOptions(opts).StartSpan("call")
	outs, err := tk.CallWithContext(opentracing.ContextWithSpan(context.Background(), root), "traced", nil)
	root.Finish()
	require.NoError(t, err)
	require.Equal(t, int64(1), outs[0].GetInt64())

	var events []string
	for _, sp := range spans {
		if sp.Operation != "sp.execute" {
			continue
		}
		require.Equal(t, "procedure:traced", sp.Tags["routine"])
		for _, rec := range sp.Logs {
			for _, f := range rec.Fields {
				events = append(events, fmt.Sprint(f.Value()))
			}
		}
	}
	require.Len(t, events, 1)
	require.Contains(t, events[0], "activate")
	require.Contains(t, events[0], "45000")

	// Without a parent span nothing is traced.
	spans = nil
	tk.MustCall("traced", nil)
	require.Empty(t, spans)
}
