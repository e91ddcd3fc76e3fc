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

package errno

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLState(t *testing.T) {
	require.Equal(t, "22012", SQLState(ErrDivisionByZero))
	require.Equal(t, "02000", SQLState(ErrSpFetchNoData))
	require.Equal(t, "24000", SQLState(ErrSpCursorAlreadyOpen))
	require.Equal(t, "45000", SQLState(ErrSignalException))
	require.Equal(t, DefaultSQLState, SQLState(65000))
}

func TestEveryCodeHasMessageAndState(t *testing.T) {
	for code := range MySQLErrName {
		_, ok := sqlStates[code]
		require.Truef(t, ok, "code %d has no SQLSTATE", code)
	}
	for code := range sqlStates {
		_, ok := MySQLErrName[code]
		require.Truef(t, ok, "code %d has no message", code)
	}
}

func TestFatalInSubStatement(t *testing.T) {
	require.True(t, IsFatalInSubStatement(ErrLockDeadlock))
	require.False(t, IsFatalInSubStatement(ErrDivisionByZero))
}
