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

	"github.com/pingcap/errors"
	"github.com/pingcap/parser/terror"
	"github.com/pingcap/tidb-routine/pkg/diagnostics"
	"github.com/pingcap/tidb-routine/pkg/errno"
	"github.com/pingcap/tidb-routine/pkg/expression"
	"github.com/pingcap/tidb-routine/pkg/types"
	"github.com/pingcap/tidb-routine/pkg/util/dbterror"
)

// Instruction is one step of a compiled routine. The set of instructions is
// closed: every implementation lives in this package.
type Instruction interface {
	fmt.Stringer
	// IP returns the position of the instruction in the routine.
	IP() int
	// Scope returns the scope the instruction was compiled in.
	Scope() *PContext
	// Execute runs the instruction and returns the ip to run next.
	Execute(ctx context.Context, ec *ExecContext) (int, error)

	opName() string
	base() *baseInstr
}

// Jump is an instruction with a static destination.
type Jump interface {
	Instruction
	Dest() int
	SetDest(dest int)
}

// Continuable is an instruction that resumes at ContDest instead of the next
// instruction when a CONTINUE handler catches its failure.
type Continuable interface {
	Instruction
	ContDest() int
	SetContDest(dest int)
}

type baseInstr struct {
	ip    int
	scope *PContext
}

// IP implements Instruction interface.
func (b *baseInstr) IP() int {
	return b.ip
}

// Scope implements Instruction interface.
func (b *baseInstr) Scope() *PContext {
	return b.scope
}

func (b *baseInstr) base() *baseInstr {
	return b
}

type jumpDest struct {
	dest int
}

// Dest implements Jump interface.
func (j *jumpDest) Dest() int {
	return j.dest
}

// SetDest implements Jump interface.
func (j *jumpDest) SetDest(dest int) {
	j.dest = dest
}

type contDest struct {
	cont int
}

// ContDest implements Continuable interface.
func (c *contDest) ContDest() int {
	return c.cont
}

// SetContDest implements Continuable interface.
func (c *contDest) SetContDest(dest int) {
	c.cont = dest
}

// continuation returns where a CONTINUE handler resumes after instr failed.
func continuation(instr Instruction) int {
	if c, ok := instr.(Continuable); ok {
		return c.ContDest()
	}
	return instr.IP() + 1
}

// StmtInstr executes an SQL statement through the statement executor.
type StmtInstr struct {
	baseInstr
	keeper *lexKeeper
	// kind is the lower-case statement keyword, e.g. "select".
	kind string
	// keepsDiagnostics is set for SHOW WARNINGS and SHOW ERRORS, which read
	// the conditions of the previous statement.
	keepsDiagnostics bool
}

// Text returns the statement text.
func (i *StmtInstr) Text() string {
	return i.keeper.text
}

// Execute implements Instruction interface.
func (i *StmtInstr) Execute(ctx context.Context, ec *ExecContext) (int, error) {
	err := i.keeper.execute(ctx, ec, func(t *parsedTree) error {
		return ec.execStmt(ctx, i.keeper, t)
	})
	return i.ip + 1, err
}

// String implements fmt.Stringer interface.
func (i *StmtInstr) String() string {
	return fmt.Sprintf("stmt %s \"%s\"", i.kind, i.keeper.text)
}

func (*StmtInstr) opName() string { return "stmt" }

// SetInstr assigns an expression to a routine variable.
type SetInstr struct {
	baseInstr
	Var    *Variable
	keeper *lexKeeper
}

// Execute implements Instruction interface.
func (i *SetInstr) Execute(ctx context.Context, ec *ExecContext) (int, error) {
	err := i.keeper.execute(ctx, ec, func(t *parsedTree) error {
		return ec.rctx.setVariable(ec, i.Var.Offset, t.expr)
	})
	return i.ip + 1, err
}

// String implements fmt.Stringer interface.
func (i *SetInstr) String() string {
	return fmt.Sprintf("set %s@%d %s", i.Var.Name, i.Var.Offset, i.keeper.exprString())
}

func (*SetInstr) opName() string { return "set" }

// SetTriggerFieldInstr assigns a column of the NEW row of a trigger.
type SetTriggerFieldInstr struct {
	baseInstr
	Column string
	keeper *lexKeeper
}

// Execute implements Instruction interface.
func (i *SetTriggerFieldInstr) Execute(ctx context.Context, ec *ExecContext) (int, error) {
	err := i.keeper.execute(ctx, ec, func(t *parsedTree) error {
		d, err := t.expr.Eval(ec)
		if err != nil {
			return err
		}
		if ec.rctx.trigger == nil {
			return ErrTrgNoSuchRowInTrg.GenWithStackByArgs("NEW", "")
		}
		return ec.rctx.trigger.set(i.Column, d)
	})
	return i.ip + 1, err
}

// String implements fmt.Stringer interface.
func (i *SetTriggerFieldInstr) String() string {
	return fmt.Sprintf("set_trigger_field NEW.%s:=%s", i.Column, i.keeper.exprString())
}

func (*SetTriggerFieldInstr) opName() string { return "set_trigger_field" }

// FReturnInstr stores the result of a function and ends it.
type FReturnInstr struct {
	baseInstr
	Type   *types.FieldType
	keeper *lexKeeper
}

// Execute implements Instruction interface.
func (i *FReturnInstr) Execute(ctx context.Context, ec *ExecContext) (int, error) {
	err := i.keeper.execute(ctx, ec, func(t *parsedTree) error {
		return ec.rctx.setReturnValue(ec, t.expr, i.Type)
	})
	if err != nil {
		return i.ip + 1, err
	}
	return len(ec.routine.instrs), nil
}

// String implements fmt.Stringer interface.
func (i *FReturnInstr) String() string {
	return fmt.Sprintf("freturn %s %s", types.TypeString(i.Type), i.keeper.exprString())
}

func (*FReturnInstr) opName() string { return "freturn" }

// JumpInstr jumps unconditionally.
type JumpInstr struct {
	baseInstr
	jumpDest
}

// Execute implements Instruction interface.
func (i *JumpInstr) Execute(context.Context, *ExecContext) (int, error) {
	return i.dest, nil
}

// String implements fmt.Stringer interface.
func (i *JumpInstr) String() string {
	return fmt.Sprintf("jump %d", i.dest)
}

func (*JumpInstr) opName() string { return "jump" }

// JumpIfNotInstr jumps when its condition is not true.
type JumpIfNotInstr struct {
	baseInstr
	jumpDest
	contDest
	keeper *lexKeeper
}

// Execute implements Instruction interface.
func (i *JumpIfNotInstr) Execute(ctx context.Context, ec *ExecContext) (int, error) {
	return evalJumpIfNot(ctx, ec, i.keeper, i.ip, i.dest)
}

func evalJumpIfNot(ctx context.Context, ec *ExecContext, lk *lexKeeper, ip, dest int) (int, error) {
	next := dest
	err := lk.execute(ctx, ec, func(t *parsedTree) error {
		ok, _, err := expression.EvalBool(ec, t.expr)
		if err != nil {
			return err
		}
		if ok {
			next = ip + 1
		} else {
			next = dest
		}
		return nil
	})
	return next, err
}

// String implements fmt.Stringer interface.
func (i *JumpIfNotInstr) String() string {
	return fmt.Sprintf("jump_if_not %d(%d) %s", i.dest, i.cont, i.keeper.exprString())
}

func (*JumpIfNotInstr) opName() string { return "jump_if_not" }

// JumpCaseWhenInstr compares the operand of a simple CASE with one WHEN
// value and jumps to the next WHEN when they differ.
type JumpCaseWhenInstr struct {
	baseInstr
	jumpDest
	contDest
	CaseIdx int
	keeper  *lexKeeper
}

// Execute implements Instruction interface.
func (i *JumpCaseWhenInstr) Execute(ctx context.Context, ec *ExecContext) (int, error) {
	return evalJumpIfNot(ctx, ec, i.keeper, i.ip, i.dest)
}

// String implements fmt.Stringer interface.
func (i *JumpCaseWhenInstr) String() string {
	return fmt.Sprintf("jump_if_not %d(%d) %s", i.dest, i.cont, i.keeper.exprString())
}

func (*JumpCaseWhenInstr) opName() string { return "jump_case_when" }

// SetCaseExprInstr evaluates and caches the operand of a simple CASE.
type SetCaseExprInstr struct {
	baseInstr
	contDest
	CaseIdx int
	keeper  *lexKeeper
}

// Execute implements Instruction interface.
func (i *SetCaseExprInstr) Execute(ctx context.Context, ec *ExecContext) (int, error) {
	err := i.keeper.execute(ctx, ec, func(t *parsedTree) error {
		return ec.rctx.setCaseExpr(ec, i.CaseIdx, t.expr)
	})
	return i.ip + 1, err
}

// String implements fmt.Stringer interface.
func (i *SetCaseExprInstr) String() string {
	return fmt.Sprintf("set_case_expr (%d) %d %s", i.cont, i.CaseIdx, i.keeper.exprString())
}

func (*SetCaseExprInstr) opName() string { return "set_case_expr" }

// HPushJumpInstr makes a handler visible and jumps over its body, which
// starts at the next instruction.
type HPushJumpInstr struct {
	baseInstr
	jumpDest
	Handler *Handler
	// Frame is the number of variables visible to the handler body.
	Frame int
}

// Execute implements Instruction interface.
func (i *HPushJumpInstr) Execute(_ context.Context, ec *ExecContext) (int, error) {
	ec.rctx.pushHandler(i.Handler, i.ip+1)
	return i.dest, nil
}

// String implements fmt.Stringer interface.
func (i *HPushJumpInstr) String() string {
	return fmt.Sprintf("hpush_jump %d %d %s", i.dest, i.Frame, i.Handler.Type)
}

func (*HPushJumpInstr) opName() string { return "hpush_jump" }

// HPopInstr removes the handlers of a scope that is being left.
type HPopInstr struct {
	baseInstr
	Count int
}

// Execute implements Instruction interface.
func (i *HPopInstr) Execute(_ context.Context, ec *ExecContext) (int, error) {
	ec.rctx.popHandlers(i.Count)
	return i.ip + 1, nil
}

// String implements fmt.Stringer interface.
func (i *HPopInstr) String() string {
	return fmt.Sprintf("hpop %d", i.Count)
}

func (*HPopInstr) opName() string { return "hpop" }

// HReturnInstr ends a handler body. An EXIT handler continues at its static
// destination, a CONTINUE handler where the interrupted code left off.
type HReturnInstr struct {
	baseInstr
	jumpDest
	Handler *Handler
	Frame   int
}

// Execute implements Instruction interface.
func (i *HReturnInstr) Execute(ctx context.Context, ec *ExecContext) (int, error) {
	frame := ec.rctx.topFrame()
	if frame == nil {
		return i.ip + 1, errors.Errorf("hreturn at %d without an active handler", i.ip)
	}
	next := i.dest
	if i.Handler.Type == HandlerContinue {
		next = frame.continueIP
	}
	ec.exitHandler(ctx, next)
	return next, nil
}

// String implements fmt.Stringer interface.
func (i *HReturnInstr) String() string {
	if i.Handler.Type == HandlerContinue {
		return fmt.Sprintf("hreturn %d", i.Frame)
	}
	return fmt.Sprintf("hreturn %d %d", i.Frame, i.dest)
}

func (*HReturnInstr) opName() string { return "hreturn" }

// CPushInstr declares a cursor over a query.
type CPushInstr struct {
	baseInstr
	Offset int
	Name   string
	keeper *lexKeeper
}

// Execute implements Instruction interface.
func (i *CPushInstr) Execute(_ context.Context, ec *ExecContext) (int, error) {
	ec.rctx.pushCursor(i)
	return i.ip + 1, nil
}

// String implements fmt.Stringer interface.
func (i *CPushInstr) String() string {
	return fmt.Sprintf("cpush %s@%d: %s", i.Name, i.Offset, i.keeper.text)
}

func (*CPushInstr) opName() string { return "cpush" }

// CPopInstr removes the cursors of a scope that is being left, closing the
// open ones.
type CPopInstr struct {
	baseInstr
	Count int
}

// Execute implements Instruction interface.
func (i *CPopInstr) Execute(ctx context.Context, ec *ExecContext) (int, error) {
	ec.rctx.popCursors(ctx, i.Count)
	return i.ip + 1, nil
}

// String implements fmt.Stringer interface.
func (i *CPopInstr) String() string {
	return fmt.Sprintf("cpop %d", i.Count)
}

func (*CPopInstr) opName() string { return "cpop" }

// COpenInstr opens a cursor.
type COpenInstr struct {
	baseInstr
	Offset int
	Name   string
}

// Execute implements Instruction interface.
func (i *COpenInstr) Execute(ctx context.Context, ec *ExecContext) (int, error) {
	return i.ip + 1, ec.rctx.cursor(i.Offset).open(ctx, ec)
}

// String implements fmt.Stringer interface.
func (i *COpenInstr) String() string {
	return fmt.Sprintf("copen %s@%d", i.Name, i.Offset)
}

func (*COpenInstr) opName() string { return "copen" }

// CCloseInstr closes a cursor.
type CCloseInstr struct {
	baseInstr
	Offset int
	Name   string
}

// Execute implements Instruction interface.
func (i *CCloseInstr) Execute(_ context.Context, ec *ExecContext) (int, error) {
	return i.ip + 1, ec.rctx.cursor(i.Offset).close()
}

// String implements fmt.Stringer interface.
func (i *CCloseInstr) String() string {
	return fmt.Sprintf("cclose %s@%d", i.Name, i.Offset)
}

func (*CCloseInstr) opName() string { return "cclose" }

// CFetchInstr fetches the next row of a cursor into variables.
type CFetchInstr struct {
	baseInstr
	Offset int
	Name   string
	Vars   []*Variable
}

// Execute implements Instruction interface.
func (i *CFetchInstr) Execute(ctx context.Context, ec *ExecContext) (int, error) {
	return i.ip + 1, ec.rctx.cursor(i.Offset).fetch(ctx, ec, i.Vars)
}

// String implements fmt.Stringer interface.
func (i *CFetchInstr) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cfetch %s@%d", i.Name, i.Offset)
	for _, v := range i.Vars {
		fmt.Fprintf(&sb, " %s@%d", v.Name, v.Offset)
	}
	return sb.String()
}

func (*CFetchInstr) opName() string { return "cfetch" }

// ErrorInstr raises a fixed error, e.g. when no CASE branch matched.
type ErrorInstr struct {
	baseInstr
	Code uint16
	err  *terror.Error
}

// Execute implements Instruction interface.
func (i *ErrorInstr) Execute(context.Context, *ExecContext) (int, error) {
	return i.ip + 1, i.err.GenWithStackByArgs()
}

// String implements fmt.Stringer interface.
func (i *ErrorInstr) String() string {
	return fmt.Sprintf("error %d", i.Code)
}

func (*ErrorInstr) opName() string { return "error" }

// SignalInstr raises a user condition. Conditions of the warning class are
// recorded as warnings and execution goes on; any other class fails.
type SignalInstr struct {
	baseInstr
	State string
	// Code is the MYSQL_ERRNO of the condition, 0 for the class default.
	Code uint16
	// message is the MESSAGE_TEXT expression, nil for the class default.
	message *lexKeeper
}

func (i *SignalInstr) condition(ctx context.Context, ec *ExecContext) (*diagnostics.SQLCondition, error) {
	level, code := diagnostics.LevelError, uint16(errno.ErrSignalException)
	switch {
	case isWarningState(i.State):
		level, code = diagnostics.LevelWarning, errno.ErrSignalWarn
	case isNotFoundState(i.State):
		code = errno.ErrSignalNotFound
	}
	msg := errno.MySQLErrName[code].Raw
	if i.Code != 0 {
		code = i.Code
	}
	if i.message != nil {
		err := i.message.execute(ctx, ec, func(t *parsedTree) error {
			d, err := t.expr.Eval(ec)
			if err != nil || d.IsNull() {
				return err
			}
			msg, err = d.ToString()
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return diagnostics.NewCondition(level, code, i.State, msg), nil
}

// Execute implements Instruction interface.
func (i *SignalInstr) Execute(ctx context.Context, ec *ExecContext) (int, error) {
	cond, err := i.condition(ctx, ec)
	if err != nil {
		return i.ip + 1, err
	}
	if cond.Level == diagnostics.LevelWarning {
		ec.sess.diag.Current().PushCondition(cond)
		return i.ip + 1, nil
	}
	return i.ip + 1, diagnostics.NewConditionError(cond)
}

// String implements fmt.Stringer interface.
func (i *SignalInstr) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "signal SQLSTATE '%s'", i.State)
	if i.Code != 0 {
		fmt.Fprintf(&sb, " MYSQL_ERRNO=%d", i.Code)
	}
	if i.message != nil {
		fmt.Fprintf(&sb, " MESSAGE_TEXT=%s", i.message.exprString())
	}
	return sb.String()
}

func (*SignalInstr) opName() string { return "signal" }

// CallInstr calls a stored procedure.
type CallInstr struct {
	baseInstr
	Name string
	args *lexKeeper
}

// Execute implements Instruction interface.
func (i *CallInstr) Execute(ctx context.Context, ec *ExecContext) (int, error) {
	err := i.args.execute(ctx, ec, func(t *parsedTree) error {
		return ec.callProcedure(ctx, i.Name, t.exprs)
	})
	return i.ip + 1, err
}

// String implements fmt.Stringer interface.
func (i *CallInstr) String() string {
	return fmt.Sprintf("call %s(%s)", i.Name, i.args.exprString())
}

func (*CallInstr) opName() string { return "call" }

func newErrorInstr(code uint16) *ErrorInstr {
	return &ErrorInstr{Code: code, err: dbterror.ClassExecutor.NewStd(terror.ErrCode(code))}
}
