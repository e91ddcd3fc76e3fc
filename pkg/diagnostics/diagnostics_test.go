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

package diagnostics

import (
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb-routine/pkg/errno"
	"github.com/pingcap/tidb-routine/pkg/util/dbterror"
	"github.com/stretchr/testify/require"
)

var errDivByZero = dbterror.ClassExpression.NewStd(errno.ErrDivisionByZero)

func TestConditionFromError(t *testing.T) {
	c := ConditionFromError(LevelWarning, errors.Trace(errDivByZero.GenWithStackByArgs()))
	require.Equal(t, LevelWarning, c.Level)
	require.Equal(t, uint16(errno.ErrDivisionByZero), c.Code)
	require.Equal(t, "22012", c.State)
	require.Equal(t, "Division by 0", c.Message)
	require.Equal(t, "Warning 1365 (22012): Division by 0", c.String())

	c = ConditionFromError(LevelError, &mysql.MySQLError{Number: errno.ErrNoSuchTable, Message: "Table 'test.t' doesn't exist"})
	require.Equal(t, "42S02", c.State)
	require.Equal(t, LevelError, c.Level)

	c = ConditionFromError(LevelError, errors.New("connection reset"))
	require.Equal(t, uint16(errno.ErrUnknown), c.Code)
	require.Equal(t, "HY000", c.State)
	require.Equal(t, "connection reset", c.Message)

	signal := NewCondition(LevelError, errno.ErrSignalException, "45001", "custom")
	c = ConditionFromError(LevelError, NewConditionError(signal))
	require.Equal(t, "45001", c.State)
	require.NotSame(t, signal, c)

	back := ConditionFromError(LevelError, c.ToError())
	require.Equal(t, c, back)
}

func TestConditionClasses(t *testing.T) {
	require.True(t, NewCondition(LevelWarning, errno.ErrSignalWarn, "", "").IsWarningClass())
	require.True(t, NewCondition(LevelError, errno.ErrSpFetchNoData, "", "").IsNotFoundClass())
	require.False(t, NewCondition(LevelError, errno.ErrDivisionByZero, "", "").IsNotFoundClass())
}

func TestAreaErrorStatus(t *testing.T) {
	a := NewArea(0)
	require.False(t, a.IsError())
	a.AppendWarning(errDivByZero.GenWithStackByArgs())
	require.False(t, a.IsError())

	c := a.SetError(errors.New("boom"))
	require.True(t, a.IsError())
	require.Same(t, c, a.ErrorCondition())
	require.Len(t, a.Conditions(), 2)
	require.Equal(t, 2, a.StatementConditionCount())
	require.Equal(t, 1, a.WarningCount())

	a.ClearError()
	require.False(t, a.IsError())
	require.Len(t, a.Conditions(), 2)

	a.Reset()
	require.Empty(t, a.Conditions())
	require.Equal(t, 0, a.StatementConditionCount())
}

func TestAreaFull(t *testing.T) {
	a := NewArea(1)
	a.AppendWarning(errDivByZero.GenWithStackByArgs())
	a.SetError(errors.New("boom"))
	require.True(t, a.IsError())
	require.Nil(t, a.ErrorCondition())
	require.Equal(t, "boom", a.ErrorStatus().Message)
	require.Len(t, a.Conditions(), 1)
}

func TestStatementConditions(t *testing.T) {
	a := NewArea(0)
	a.AppendWarning(errDivByZero.GenWithStackByArgs())
	a.ResetStatementConditionCount()
	a.AppendNote(errors.New("note"))
	conds := a.StatementConditions()
	require.Len(t, conds, 1)
	require.Equal(t, LevelNote, conds[0].Level)
}

func TestStackAndPreexisting(t *testing.T) {
	s := NewStack(0)
	parent := s.Current()
	trigger := parent.SetError(errDivByZero.GenWithStackByArgs())

	handler := s.Push()
	require.Equal(t, 2, s.Depth())
	handler.PushPreexisting(trigger)
	require.Len(t, handler.Conditions(), 1)
	require.Empty(t, handler.NewConditions())
	require.Empty(t, handler.StatementConditions())

	handler.AppendWarning(errors.New("raised by handler"))
	require.Same(t, handler, s.Pop())
	require.Same(t, parent, s.Current())

	parent.ClearError()
	parent.ResetConditions()
	parent.CopyNewConditions(handler)
	conds := parent.Conditions()
	require.Len(t, conds, 1)
	require.Equal(t, "raised by handler", conds[0].Message)
	require.Nil(t, s.Pop())
}
