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

package sp

import (
	"testing"

	"github.com/pingcap/parser/mysql"
	"github.com/pingcap/tidb-routine/pkg/types"
	"github.com/stretchr/testify/require"
)

func intType() *types.FieldType {
	return types.NewFieldType(mysql.TypeLonglong)
}

func TestAssembleWhileLoop(t *testing.T) {
	a := NewAssembler(TypeProcedure, "count_up")
	require.NoError(t, a.DeclareParam("n", intType(), ParamIn))
	b := a.BeginBlock()
	_, err := a.DeclareVar("i", intType(), "0")
	require.NoError(t, err)
	start, end := a.NewLabel(), a.NewLabel()
	a.Bind(start)
	require.NoError(t, a.JumpIfNot("i < n", end, end))
	require.NoError(t, a.Set("i", "i + 1"))
	a.Jump(start)
	a.Bind(end)
	a.EndBlock(b)
	r, err := a.Build()
	require.NoError(t, err)

	require.Equal(t, "0\tset i@1 0\n"+
		"1\tjump_if_not 4(4) (i@1 < n@0)\n"+
		"2\tset i@1 (i@1 + 1)\n"+
		"3\tjump 1\n", r.ShowCode())
	require.Equal(t, 2, r.PContext().MaxVarIndex())
	require.Len(t, r.PContext().Params(), 1)
}

func TestAssembleHandlerBlock(t *testing.T) {
	a := NewAssembler(TypeProcedure, "guarded")
	b := a.BeginBlock()
	_, err := a.DeclareVar("done", intType(), "")
	require.NoError(t, err)
	require.NoError(t, a.DeclareCursor("c", "SELECT id FROM t"))
	hb, err := a.BeginHandler(HandlerExit, []*ConditionValue{{Type: ConditionNotFound}}, b.End())
	require.NoError(t, err)
	require.NoError(t, a.Set("done", "1"))
	a.EndHandler(hb)
	require.NoError(t, a.Open("c"))
	require.NoError(t, a.Fetch("c", []string{"done"}))
	require.NoError(t, a.Close("c"))
	a.EndBlock(b)
	r, err := a.Build()
	require.NoError(t, err)

	require.Equal(t, "0\tset done@0 NULL\n"+
		"1\tcpush c@0: SELECT id FROM t\n"+
		"2\thpush_jump 5 1 EXIT\n"+
		"3\tset done@0 1\n"+
		"4\threturn 1 8\n"+
		"5\tcopen c@0\n"+
		"6\tcfetch c@0 done@0\n"+
		"7\tcclose c@0\n"+
		"8\thpop 1\n"+
		"9\tcpop 1\n", r.ShowCode())
}

func TestAssemblerErrors(t *testing.T) {
	a := NewAssembler(TypeProcedure, "p")
	require.True(t, ErrSpUndeclaredVar.Equal(a.Set("x", "1")))
	require.True(t, ErrSpCursorMismatch.Equal(a.Open("c")))
	require.True(t, ErrSpBadReturn.Equal(a.Return("1")))
	require.True(t, ErrSpBadSQLState.Equal(a.Signal("00000", 0, "")))
	require.Error(t, a.Stmt("SELEKT 1"))
	require.Error(t, a.Call("q", "1,"))

	a.Jump(a.NewLabel())
	_, err := a.Build()
	require.Error(t, err)

	f := NewAssembler(TypeFunction, "f")
	f.SetReturns(intType())
	_, err = f.Build()
	require.True(t, ErrSpNoReturn.Equal(err))
}

func TestOptimizeRemovesDeadCode(t *testing.T) {
	a := NewAssembler(TypeProcedure, "dead")
	_, err := a.DeclareVar("x", intType(), "")
	require.NoError(t, err)
	l1, l2 := a.NewLabel(), a.NewLabel()
	a.Jump(l1)
	require.NoError(t, a.Set("x", "1"))
	a.Bind(l1)
	a.Jump(l2)
	require.NoError(t, a.Set("x", "2"))
	a.Bind(l2)
	require.NoError(t, a.Set("x", "3"))

	a.SetOptimize(false)
	r, err := a.Build()
	require.NoError(t, err)
	require.Len(t, r.Instructions(), 6)

	a.SetOptimize(true)
	r, err = a.Build()
	require.NoError(t, err)
	require.Equal(t, "0\tset x@0 NULL\n"+
		"1\tjump 2\n"+
		"2\tset x@0 3\n", r.ShowCode())
}

func TestOptimizeKeepsContinuations(t *testing.T) {
	a := NewAssembler(TypeProcedure, "cont")
	_, err := a.DeclareVar("x", intType(), "")
	require.NoError(t, err)
	elseLabel, end := a.NewLabel(), a.NewLabel()
	require.NoError(t, a.JumpIfNot("x > 0", elseLabel, end))
	require.NoError(t, a.Set("x", "1"))
	a.Jump(end)
	a.Bind(elseLabel)
	require.NoError(t, a.Set("x", "2"))
	a.Bind(end)
	a.Error(1339)
	r, err := a.Build()
	require.NoError(t, err)
	require.Equal(t, "0\tset x@0 NULL\n"+
		"1\tjump_if_not 4(5) (x@0 > 0)\n"+
		"2\tset x@0 1\n"+
		"3\tjump 5\n"+
		"4\tset x@0 2\n"+
		"5\terror 1339\n", r.ShowCode())
}
