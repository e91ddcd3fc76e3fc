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
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/pingcap/errors"
	pmysql "github.com/pingcap/parser/mysql"
	"github.com/pingcap/parser/terror"
	"github.com/pingcap/tidb-routine/pkg/errno"
)

// Level is the severity of a condition.
type Level int

// Condition levels.
const (
	LevelNote Level = iota
	LevelWarning
	LevelError
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelNote:
		return "Note"
	case LevelWarning:
		return "Warning"
	default:
		return "Error"
	}
}

// SQLCondition is one entry of a diagnostics area: an error, warning or note
// with its MySQL error number and SQLSTATE.
type SQLCondition struct {
	Level   Level
	Code    uint16
	State   string
	Message string
}

// NewCondition creates a condition. An empty state is derived from the code.
func NewCondition(level Level, code uint16, state, msg string) *SQLCondition {
	if state == "" {
		state = errno.SQLState(code)
	}
	return &SQLCondition{Level: level, Code: code, State: state, Message: msg}
}

// Clone returns a copy of the condition.
func (c *SQLCondition) Clone() *SQLCondition {
	cp := *c
	return &cp
}

// String implements fmt.Stringer in the layout of SHOW WARNINGS.
func (c *SQLCondition) String() string {
	return fmt.Sprintf("%s %d (%s): %s", c.Level, c.Code, c.State, c.Message)
}

// ToError converts the condition back to an error value carrying the same
// code, SQLSTATE and message.
func (c *SQLCondition) ToError() error {
	return &pmysql.SQLError{Code: c.Code, State: c.State, Message: c.Message}
}

// IsWarningClass reports whether the SQLSTATE class is 01 (warning).
func (c *SQLCondition) IsWarningClass() bool {
	return len(c.State) >= 2 && c.State[:2] == "01"
}

// IsNotFoundClass reports whether the SQLSTATE class is 02 (no data).
func (c *SQLCondition) IsNotFoundClass() bool {
	return len(c.State) >= 2 && c.State[:2] == "02"
}

// ConditionFromError converts an error to a condition of the given level.
// SQL errors keep their code and message; any other error becomes an
// ER_UNKNOWN_ERROR condition carrying the error text.
func ConditionFromError(level Level, err error) *SQLCondition {
	switch x := errors.Cause(err).(type) {
	case *SQLConditionError:
		c := x.Cond.Clone()
		c.Level = level
		return c
	case *terror.Error:
		se := terror.ToSQLError(x)
		return NewCondition(level, se.Code, "", se.Message)
	case *pmysql.SQLError:
		return NewCondition(level, x.Code, x.State, x.Message)
	case *mysql.MySQLError:
		var state string
		if x.SQLState != [5]byte{} {
			state = string(x.SQLState[:])
		}
		return NewCondition(level, x.Number, state, x.Message)
	}
	return NewCondition(level, errno.ErrUnknown, errno.DefaultSQLState, err.Error())
}

// SQLConditionError wraps a condition raised as an error, for example by
// SIGNAL, so that the handler subsystem sees it unchanged.
type SQLConditionError struct {
	Cond *SQLCondition
}

// Error implements the error interface.
func (e *SQLConditionError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Cond.Code, e.Cond.Message)
}

// NewConditionError returns an error for cond.
func NewConditionError(cond *SQLCondition) error {
	return errors.WithStack(&SQLConditionError{Cond: cond})
}
