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

// MySQL error codes used by the routine engine.
const (
	ErrOutOfResources              = 1041
	ErrBadField                    = 1054
	ErrParse                       = 1064
	ErrUnknown                     = 1105
	ErrNoSuchTable                 = 1146
	ErrLockWaitTimeout             = 1205
	ErrLockDeadlock                = 1213
	ErrWarnDataOutOfRange          = 1264
	ErrTruncatedWrongValue         = 1292
	ErrNotSupportedYet             = 1235
	ErrOperandColumns              = 1241
	ErrSubqueryNo1Row              = 1242
	ErrSpDoesNotExist              = 1305
	ErrSpLilabelMismatch           = 1308
	ErrSpLabelRedefine             = 1309
	ErrSpBadReturn                 = 1313
	ErrQueryInterrupted            = 1317
	ErrSpWrongNoOfArgs             = 1318
	ErrSpCondMismatch              = 1319
	ErrSpNoReturn                  = 1320
	ErrSpNoReturnEnd               = 1321
	ErrSpCursorMismatch            = 1324
	ErrSpCursorAlreadyOpen         = 1325
	ErrSpCursorNotOpen             = 1326
	ErrSpUndeclaredVar             = 1327
	ErrSpWrongNoOfFetchArgs        = 1328
	ErrSpFetchNoData               = 1329
	ErrSpDupParam                  = 1330
	ErrSpDupVar                    = 1331
	ErrSpDupCond                   = 1332
	ErrSpDupCurs                   = 1333
	ErrSpCaseNotFound              = 1339
	ErrTrgCantChangeRow            = 1362
	ErrTrgNoSuchRowInTrg           = 1363
	ErrDivisionByZero              = 1365
	ErrTruncatedWrongValueForField = 1366
	ErrDataTooLong                 = 1406
	ErrSpBadSQLState               = 1407
	ErrSpNotVarArg                 = 1414
	ErrSpNoRecursion               = 1424
	ErrSpRecursionLimit            = 1456
	ErrWrongParamcountToNativeFct  = 1582
	ErrNeedReprepare               = 1615
	ErrSignalWarn                  = 1642
	ErrSignalNotFound              = 1643
	ErrSignalException             = 1644
	ErrDataOutOfRange              = 1690
)
