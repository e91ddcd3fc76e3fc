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
	"github.com/pingcap/tidb-routine/pkg/diagnostics"
	"github.com/pingcap/tidb-routine/pkg/errno"
	"github.com/pingcap/tidb-routine/pkg/util/dbterror"
)

// Error instances.
var (
	ErrOutOfResources       = dbterror.ClassExecutor.NewStd(errno.ErrOutOfResources)
	ErrQueryInterrupted     = dbterror.ClassExecutor.NewStd(errno.ErrQueryInterrupted)
	ErrNeedReprepare        = dbterror.ClassExecutor.NewStd(errno.ErrNeedReprepare)
	ErrSpDoesNotExist       = dbterror.ClassExecutor.NewStd(errno.ErrSpDoesNotExist)
	ErrSpWrongNoOfArgs      = dbterror.ClassExecutor.NewStd(errno.ErrSpWrongNoOfArgs)
	ErrSpNoReturnEnd        = dbterror.ClassExecutor.NewStd(errno.ErrSpNoReturnEnd)
	ErrSpCursorAlreadyOpen  = dbterror.ClassExecutor.NewStd(errno.ErrSpCursorAlreadyOpen)
	ErrSpCursorNotOpen      = dbterror.ClassExecutor.NewStd(errno.ErrSpCursorNotOpen)
	ErrSpWrongNoOfFetchArgs = dbterror.ClassExecutor.NewStd(errno.ErrSpWrongNoOfFetchArgs)
	ErrSpFetchNoData        = dbterror.ClassExecutor.NewStd(errno.ErrSpFetchNoData)
	ErrSpCaseNotFound       = dbterror.ClassExecutor.NewStd(errno.ErrSpCaseNotFound)
	ErrSpNoRecursion        = dbterror.ClassExecutor.NewStd(errno.ErrSpNoRecursion)
	ErrSpRecursionLimit     = dbterror.ClassExecutor.NewStd(errno.ErrSpRecursionLimit)
	ErrSpNotVarArg          = dbterror.ClassExecutor.NewStd(errno.ErrSpNotVarArg)
	ErrSpBadSQLState        = dbterror.ClassExecutor.NewStd(errno.ErrSpBadSQLState)
	ErrTrgCantChangeRow     = dbterror.ClassExecutor.NewStd(errno.ErrTrgCantChangeRow)
	ErrTrgNoSuchRowInTrg    = dbterror.ClassExecutor.NewStd(errno.ErrTrgNoSuchRowInTrg)
	ErrBadField             = dbterror.ClassExecutor.NewStd(errno.ErrBadField)
	ErrSubqueryNo1Row       = dbterror.ClassExecutor.NewStd(errno.ErrSubqueryNo1Row)
	ErrOperandColumns       = dbterror.ClassExecutor.NewStd(errno.ErrOperandColumns)
	ErrSpDupVar             = dbterror.ClassExecutor.NewStd(errno.ErrSpDupVar)
	ErrSpDupParam           = dbterror.ClassExecutor.NewStd(errno.ErrSpDupParam)
	ErrSpDupCond            = dbterror.ClassExecutor.NewStd(errno.ErrSpDupCond)
	ErrSpDupCurs            = dbterror.ClassExecutor.NewStd(errno.ErrSpDupCurs)
	ErrSpNoReturn           = dbterror.ClassExecutor.NewStd(errno.ErrSpNoReturn)
	ErrSpBadReturn          = dbterror.ClassExecutor.NewStd(errno.ErrSpBadReturn)
	ErrSpLilabelMismatch    = dbterror.ClassExecutor.NewStd(errno.ErrSpLilabelMismatch)
	ErrSpLabelRedefine      = dbterror.ClassExecutor.NewStd(errno.ErrSpLabelRedefine)
	ErrSpCondMismatch       = dbterror.ClassExecutor.NewStd(errno.ErrSpCondMismatch)
	ErrSpCursorMismatch     = dbterror.ClassExecutor.NewStd(errno.ErrSpCursorMismatch)
	ErrSpUndeclaredVar      = dbterror.ClassExecutor.NewStd(errno.ErrSpUndeclaredVar)
)

// errCode returns the MySQL error code carried by err.
func errCode(err error) uint16 {
	return diagnostics.ConditionFromError(diagnostics.LevelError, err).Code
}
