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

package sp_test

import (
	"context"
	"testing"

	"github.com/pingcap/tidb-routine/pkg/sp"
	. "github.com/pingcap/tidb-routine/pkg/testkit"
	"github.com/stretchr/testify/require"
)

func TestReprepareStaysInInnermostStatement(t *testing.T) {
	tk := NewTestKit(t, "")
	inner := Procedure("q", nil,
		SQL("INSERT INTO t VALUES (1)"),
		SQL("UPDATE t SET a = 2"),
	)
	tk.MustAddRoutine(inner)
	tk.MustAddRoutine(Procedure("p", nil, Call("q", "")))
	tk.MustCall("p")
	require.Len(t, tk.Executor().Executed(), 2)

	// Recreating q gives its statements fresh trees while p's CALL is
	// already prepared.
	tk.MustAddRoutine(inner)
	var stale bool
	tk.Executor().OnExec("^UPDATE").Do(func(_ context.Context, sess *sp.Session, _ *sp.Stmt) error {
		if !stale {
			return nil
		}
		stale = false
		return sess.ReportMetadataChange()
	})

	stale = true
	tk.MustCall("p")
	require.Equal(t, []string{
		"INSERT INTO t VALUES (1)", "UPDATE t SET a = 2",
		"INSERT INTO t VALUES (1)", "UPDATE t SET a = 2",
	}, tk.Executor().Executed())

	// Once q's UPDATE has run, only that statement is retried.
	stale = true
	tk.MustCall("p")
	require.Equal(t, []string{
		"INSERT INTO t VALUES (1)", "UPDATE t SET a = 2",
		"INSERT INTO t VALUES (1)", "UPDATE t SET a = 2",
		"INSERT INTO t VALUES (1)", "UPDATE t SET a = 2", "UPDATE t SET a = 2",
	}, tk.Executor().Executed())
	require.False(t, stale)
}
