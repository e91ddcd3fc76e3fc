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

package types

import (
	"github.com/pingcap/tidb-routine/pkg/errno"
	"github.com/pingcap/tidb-routine/pkg/util/dbterror"
)

var (
	// ErrTruncatedWrongVal is returned when data has been truncated during conversion.
	ErrTruncatedWrongVal = dbterror.ClassTypes.NewStd(errno.ErrTruncatedWrongValue)
	// ErrWrongValueForField is returned when a value cannot be stored into a typed slot.
	ErrWrongValueForField = dbterror.ClassTypes.NewStd(errno.ErrTruncatedWrongValueForField)
	// ErrWarnDataOutOfRange is returned when a value is out of the range of the target type.
	ErrWarnDataOutOfRange = dbterror.ClassTypes.NewStd(errno.ErrWarnDataOutOfRange)
	// ErrDataTooLong is returned when a string is longer than the target length.
	ErrDataTooLong = dbterror.ClassTypes.NewStd(errno.ErrDataTooLong)
	// ErrOverflow is returned when an arithmetic result does not fit its type.
	ErrOverflow = dbterror.ClassTypes.NewStd(errno.ErrDataOutOfRange)
)
