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

package dbterror

import (
	"testing"

	"github.com/pingcap/errors"
	"github.com/pingcap/parser/terror"
	"github.com/pingcap/tidb-routine/pkg/errno"
	"github.com/stretchr/testify/require"
)

func TestNewStd(t *testing.T) {
	errCursorNotOpen := ClassExecutor.NewStd(errno.ErrSpCursorNotOpen)
	err := errors.Trace(errCursorNotOpen.GenWithStackByArgs())
	require.True(t, errCursorNotOpen.Equal(err))

	sqlErr := terror.ToSQLError(errors.Cause(err).(*terror.Error))
	require.Equal(t, uint16(errno.ErrSpCursorNotOpen), sqlErr.Code)
	require.Equal(t, "Cursor is not open", sqlErr.Message)

	errTooLong := ClassTypes.NewStd(errno.ErrDataTooLong)
	require.Contains(t, errTooLong.GenWithStackByArgs("v", 1).Error(), "Data too long for column 'v' at row 1")
}
