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

package expression

import (
	"github.com/pingcap/tidb-routine/pkg/errno"
	"github.com/pingcap/tidb-routine/pkg/util/dbterror"
)

// Error instances.
var (
	ErrDivisionByZero          = dbterror.ClassExpression.NewStd(errno.ErrDivisionByZero)
	ErrIncorrectParameterCount = dbterror.ClassExpression.NewStd(errno.ErrWrongParamcountToNativeFct)
	ErrSubqueryMoreThan1Row    = dbterror.ClassExpression.NewStd(errno.ErrSubqueryNo1Row)
	ErrOperandColumns          = dbterror.ClassExpression.NewStd(errno.ErrOperandColumns)
	ErrNotSupportedYet         = dbterror.ClassExpression.NewStd(errno.ErrNotSupportedYet)
	ErrBadField                = dbterror.ClassExpression.NewStd(errno.ErrBadField)
	ErrFunctionNotExists       = dbterror.ClassExpression.NewStd(errno.ErrSpDoesNotExist)
)

// handleDivisionByZeroError reports a division by zero as a warning, or as an
// error when the context asks for it.
func handleDivisionByZeroError(ctx EvalContext) error {
	if ctx.DivisionByZeroIsError() {
		return ErrDivisionByZero.GenWithStackByArgs()
	}
	ctx.AppendWarning(ErrDivisionByZero.GenWithStackByArgs())
	return nil
}

// handleTruncateError turns a conversion truncation into a warning.
func handleTruncateError(ctx EvalContext, err error) {
	if err != nil {
		ctx.AppendWarning(err)
	}
}
