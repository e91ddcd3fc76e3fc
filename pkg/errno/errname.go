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

// MySQLErrName maps error code to MySQL error messages.
var MySQLErrName = map[uint16]*mysql.ErrMessage{
	ErrOutOfResources:              mysql.Message("Out of memory; check if mysqld or some other process uses all available memory; if not, you may have to use 'ulimit' to allow mysqld to use more memory or you can add more swap space", nil),
	ErrBadField:                    mysql.Message("Unknown column '%-.192s' in '%-.192s'", nil),
	ErrParse:                       mysql.Message("%s %s", nil),
	ErrUnknown:                     mysql.Message("Unknown error", nil),
	ErrNoSuchTable:                 mysql.Message("Table '%-.192s.%-.192s' doesn't exist", nil),
	ErrLockWaitTimeout:             mysql.Message("Lock wait timeout exceeded; try restarting transaction", nil),
	ErrLockDeadlock:                mysql.Message("Deadlock found when trying to get lock; try restarting transaction", nil),
	ErrWarnDataOutOfRange:          mysql.Message("Out of range value for column '%s' at row %d", nil),
	ErrTruncatedWrongValue:         mysql.Message("Truncated incorrect %-.32s value: '%-.128s'", []int{1}),
	ErrNotSupportedYet:             mysql.Message("This version of TiDB doesn't yet support '%s'", nil),
	ErrOperandColumns:              mysql.Message("Operand should contain %d column(s)", nil),
	ErrSubqueryNo1Row:              mysql.Message("Subquery returns more than 1 row", nil),
	ErrSpDoesNotExist:              mysql.Message("%s %s does not exist", nil),
	ErrSpLilabelMismatch:           mysql.Message("%s with no matching label: %s", nil),
	ErrSpLabelRedefine:             mysql.Message("Redefining label %s", nil),
	ErrSpBadReturn:                 mysql.Message("RETURN is only allowed in a FUNCTION", nil),
	ErrQueryInterrupted:            mysql.Message("Query execution was interrupted", nil),
	ErrSpWrongNoOfArgs:             mysql.Message("Incorrect number of arguments for %s %s; expected %d, got %d", nil),
	ErrSpCondMismatch:              mysql.Message("Undefined CONDITION: %s", nil),
	ErrSpNoReturn:                  mysql.Message("No RETURN found in FUNCTION %s", nil),
	ErrSpNoReturnEnd:               mysql.Message("FUNCTION %s ended without RETURN", nil),
	ErrSpCursorMismatch:            mysql.Message("Undefined CURSOR: %s", nil),
	ErrSpCursorAlreadyOpen:         mysql.Message("Cursor is already open", nil),
	ErrSpCursorNotOpen:             mysql.Message("Cursor is not open", nil),
	ErrSpUndeclaredVar:             mysql.Message("Undeclared variable: %s", nil),
	ErrSpWrongNoOfFetchArgs:        mysql.Message("Incorrect number of FETCH variables", nil),
	ErrSpFetchNoData:               mysql.Message("No data - zero rows fetched, selected, or processed", nil),
	ErrSpDupParam:                  mysql.Message("Duplicate parameter: %s", nil),
	ErrSpDupVar:                    mysql.Message("Duplicate variable: %s", nil),
	ErrSpDupCond:                   mysql.Message("Duplicate condition: %s", nil),
	ErrSpDupCurs:                   mysql.Message("Duplicate cursor: %s", nil),
	ErrSpCaseNotFound:              mysql.Message("Case not found for CASE statement", nil),
	ErrTrgCantChangeRow:            mysql.Message("Updating of %s row is not allowed in %strigger", nil),
	ErrTrgNoSuchRowInTrg:           mysql.Message("There is no %s row in %s trigger", nil),
	ErrDivisionByZero:              mysql.Message("Division by 0", nil),
	ErrTruncatedWrongValueForField: mysql.Message("Incorrect %-.32s value: '%-.128s' for column '%.192s' at row %d", []int{1}),
	ErrDataTooLong:                 mysql.Message("Data too long for column '%s' at row %d", nil),
	ErrSpBadSQLState:               mysql.Message("Bad SQLSTATE: '%s'", nil),
	ErrSpNotVarArg:                 mysql.Message("OUT or INOUT argument %d for routine %s is not a variable or NEW pseudo-variable in BEFORE trigger", nil),
	ErrSpNoRecursion:               mysql.Message("Recursive stored functions and triggers are not allowed.", nil),
	ErrSpRecursionLimit:            mysql.Message("Recursive limit %d (as set by the max_sp_recursion_depth variable) was exceeded for routine %.192s", nil),
	ErrWrongParamcountToNativeFct:  mysql.Message("Incorrect parameter count in the call to native function '%-.192s'", nil),
	ErrNeedReprepare:               mysql.Message("Prepared statement needs to be re-prepared", nil),
	ErrSignalWarn:                  mysql.Message("Unhandled user-defined warning condition", nil),
	ErrSignalNotFound:              mysql.Message("Unhandled user-defined not found condition", nil),
	ErrSignalException:             mysql.Message("Unhandled user-defined exception condition", nil),
	ErrDataOutOfRange:              mysql.Message("%s value is out of range in '%s'", nil),
}
