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
	"context"
	"fmt"
	"strings"

	"github.com/pingcap/parser/ast"
	"github.com/pingcap/tidb-routine/pkg/expression"
	"github.com/pingcap/tidb-routine/pkg/types"
)

// RoutineType is the kind of a stored routine.
type RoutineType int

// Routine types.
const (
	TypeProcedure RoutineType = iota
	TypeFunction
	TypeTrigger
)

// String implements fmt.Stringer interface.
func (t RoutineType) String() string {
	switch t {
	case TypeFunction:
		return "FUNCTION"
	case TypeTrigger:
		return "TRIGGER"
	}
	return "PROCEDURE"
}

// Routine is a compiled stored procedure, function or trigger. It is
// immutable once built and may be executed by many sessions at the same
// time; the cached parse trees of its instructions are the only state that
// changes after compilation.
type Routine struct {
	tp      RoutineType
	name    string
	pctx    *PContext
	instrs  []Instruction
	returns *types.FieldType
	parser  *expression.Parser
}

// Type returns the routine type.
func (r *Routine) Type() RoutineType {
	return r.tp
}

// Name returns the routine name.
func (r *Routine) Name() string {
	return r.name
}

// PContext returns the root scope.
func (r *Routine) PContext() *PContext {
	return r.pctx
}

// Instructions returns the instruction array.
func (r *Routine) Instructions() []Instruction {
	return r.instrs
}

// Returns returns the return type of a function, nil otherwise.
func (r *Routine) Returns() *types.FieldType {
	return r.returns
}

func (r *Routine) qualifiedName() string {
	return strings.ToLower(r.tp.String()) + ":" + strings.ToLower(r.name)
}

// ShowCode renders the instructions in the layout of SHOW PROCEDURE CODE,
// one "ip<TAB>instruction" line per instruction.
func (r *Routine) ShowCode() string {
	var sb strings.Builder
	for _, instr := range r.instrs {
		fmt.Fprintf(&sb, "%d\t%s\n", instr.IP(), instr)
	}
	return sb.String()
}

// Stmt is a routine statement handed to the statement executor.
type Stmt struct {
	// Text is the statement with routine variables replaced by literals.
	Text string
	// LogText is the form written to the general log and the binary log.
	// With statement-based binary logging variables appear as NAME_CONST.
	LogText string
	// Node is the parsed statement.
	Node ast.StmtNode
}

// RecordSet is an open result set of a cursor or scalar subquery.
type RecordSet interface {
	// Columns returns the number of columns.
	Columns() int
	// Next returns the next row, or nil when the set is exhausted.
	Next(ctx context.Context) ([]types.Datum, error)
	Close() error
}

// StmtExecutor runs the SQL statements of a routine body. It may report a
// stale plan by returning the error of Session.ReportMetadataChange.
type StmtExecutor interface {
	// ExecStmt executes stmt, sending any result set to the client.
	ExecStmt(ctx context.Context, sess *Session, stmt *Stmt) error
	// Query opens a result set for a cursor or a subquery.
	Query(ctx context.Context, sess *Session, stmt *Stmt) (RecordSet, error)
}

// Protocol is the client protocol layer of a session.
type Protocol interface {
	// HasPartialResultSet reports whether a result set is being sent.
	HasPartialResultSet() bool
	// EndPartialResultSet terminates the result set being sent.
	EndPartialResultSet()
}

// RoutineResolver finds routines called by name.
type RoutineResolver interface {
	GetRoutine(ctx context.Context, tp RoutineType, name string) (*Routine, error)
}

// Arg is an argument of a routine call. Out receives the final value of an
// OUT or INOUT parameter when the call succeeds.
type Arg struct {
	Value types.Datum
	Out   func(types.Datum) error
}

// TriggerRows holds the rows a trigger operates on. New is nil for DELETE
// triggers and Old is nil for INSERT triggers.
type TriggerRows struct {
	Columns []string
	Types   []*types.FieldType
	New     []types.Datum
	Old     []types.Datum
	// Event is INSERT, UPDATE or DELETE.
	Event string
}

func (tr *TriggerRows) columnIndex(name string) int {
	for i, c := range tr.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

func (tr *TriggerRows) get(old bool, name string) (types.Datum, error) {
	row, which := tr.New, "NEW"
	if old {
		row, which = tr.Old, "OLD"
	}
	if row == nil {
		return types.Datum{}, ErrTrgNoSuchRowInTrg.GenWithStackByArgs(which, tr.Event)
	}
	idx := tr.columnIndex(name)
	if idx < 0 {
		return types.Datum{}, ErrBadField.GenWithStackByArgs(name, which)
	}
	return row[idx], nil
}

func (tr *TriggerRows) set(name string, d types.Datum) error {
	if tr.New == nil {
		return ErrTrgNoSuchRowInTrg.GenWithStackByArgs("NEW", tr.Event)
	}
	idx := tr.columnIndex(name)
	if idx < 0 {
		return ErrBadField.GenWithStackByArgs(name, "NEW")
	}
	if tr.Types != nil && tr.Types[idx] != nil {
		var err error
		if d, err = d.ConvertTo(tr.Types[idx], name); err != nil {
			return err
		}
	}
	tr.New[idx] = d
	return nil
}
