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

import "github.com/pingcap/parser/mysql"

// DefaultSQLState is the SQLSTATE reported for codes without a specific one.
const DefaultSQLState = "HY000"

// sqlStates maps error codes to their SQLSTATE. Codes absent here fall back
// to the parser's table and then to DefaultSQLState.
var sqlStates = map[uint16]string{
	ErrOutOfResources:              "HY001",
	ErrBadField:                    "42S22",
	ErrParse:                       "42000",
	ErrUnknown:                     "HY000",
	ErrNoSuchTable:                 "42S02",
	ErrLockWaitTimeout:             "HY000",
	ErrLockDeadlock:                "40001",
	ErrWarnDataOutOfRange:          "22003",
	ErrTruncatedWrongValue:         "22007",
	ErrNotSupportedYet:             "42000",
	ErrOperandColumns:              "21000",
	ErrSubqueryNo1Row:              "21000",
	ErrSpDoesNotExist:              "42000",
	ErrSpLilabelMismatch:           "42000",
	ErrSpLabelRedefine:             "42000",
	ErrSpBadReturn:                 "42000",
	ErrQueryInterrupted:            "70100",
	ErrSpWrongNoOfArgs:             "42000",
	ErrSpCondMismatch:              "42000",
	ErrSpNoReturn:                  "42000",
	ErrSpNoReturnEnd:               "2F005",
	ErrSpCursorMismatch:            "34000",
	ErrSpCursorAlreadyOpen:         "24000",
	ErrSpCursorNotOpen:             "24000",
	ErrSpUndeclaredVar:             "42000",
	ErrSpWrongNoOfFetchArgs:        "HY000",
	ErrSpFetchNoData:               "02000",
	ErrSpDupParam:                  "42000",
	ErrSpDupVar:                    "42000",
	ErrSpDupCond:                   "42000",
	ErrSpDupCurs:                   "42000",
	ErrSpCaseNotFound:              "20000",
	ErrTrgCantChangeRow:            "HY000",
	ErrTrgNoSuchRowInTrg:           "HY000",
	ErrDivisionByZero:              "22012",
	ErrTruncatedWrongValueForField: "HY000",
	ErrDataTooLong:                 "22001",
	ErrSpBadSQLState:               "42000",
	ErrSpNotVarArg:                 "42000",
	ErrSpNoRecursion:               "HY000",
	ErrSpRecursionLimit:            "HY000",
	ErrWrongParamcountToNativeFct:  "42000",
	ErrNeedReprepare:               "HY000",
	ErrSignalWarn:                  "01000",
	ErrSignalNotFound:              "02000",
	ErrSignalException:             "45000",
	ErrDataOutOfRange:              "22003",
}

// SQLState returns the SQLSTATE of an error code.
func SQLState(code uint16) string {
	if state, ok := sqlStates[code]; ok {
		return state
	}
	if state, ok := mysql.MySQLState[code]; ok {
		return state
	}
	return DefaultSQLState
}

// IsFatalInSubStatement reports whether an error aborts every enclosing
// sub-statement, so that no handler inside a stored function or trigger may
// catch it.
func IsFatalInSubStatement(code uint16) bool {
	return code == ErrLockDeadlock || code == ErrLockWaitTimeout
}
