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
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/tidb-routine/pkg/errno"
	"github.com/pingcap/tidb-routine/pkg/expression"
	"github.com/pingcap/tidb-routine/pkg/types"
)

// Label is a position in the instruction array that jumps may refer to
// before it is known.
type Label struct {
	pos    int
	fixups []func(int)
}

// Bound reports whether the label has a position.
func (l *Label) Bound() bool {
	return l.pos >= 0
}

// Block is an open BEGIN ... END scope.
type Block struct {
	scope *PContext
	end   *Label
}

// Scope returns the scope of the block.
func (b *Block) Scope() *PContext {
	return b.scope
}

// End returns the label bound at the end of the block, before the
// instructions that drop its handlers and cursors.
func (b *Block) End() *Label {
	return b.end
}

// HandlerBlock is an open handler body.
type HandlerBlock struct {
	handler  *Handler
	after    *Label
	exitDest *Label
}

// Handler returns the handler being declared.
func (hb *HandlerBlock) Handler() *Handler {
	return hb.handler
}

// Assembler builds the instructions of a routine. Labels are resolved by
// backpatching. Compile-time errors are returned by the method that emits
// the faulty instruction.
type Assembler struct {
	tp       RoutineType
	name     string
	root     *PContext
	scope    *PContext
	parser   *expression.Parser
	instrs   []Instruction
	labels   []*Label
	returns  *types.FieldType
	returned bool
	optimize bool
}

// NewAssembler creates an assembler for routine name of type tp.
func NewAssembler(tp RoutineType, name string) *Assembler {
	root := NewPContext()
	return &Assembler{
		tp:       tp,
		name:     name,
		root:     root,
		scope:    root,
		parser:   expression.NewParser(),
		optimize: true,
	}
}

// SetOptimize turns the dead code pass of Build on or off.
func (a *Assembler) SetOptimize(on bool) {
	a.optimize = on
}

// SetReturns sets the return type of a function.
func (a *Assembler) SetReturns(tp *types.FieldType) {
	a.returns = tp
}

// Type returns the type of the routine being built.
func (a *Assembler) Type() RoutineType {
	return a.tp
}

// Scope returns the current scope.
func (a *Assembler) Scope() *PContext {
	return a.scope
}

func (a *Assembler) emit(instr Instruction) {
	b := instr.base()
	b.ip = len(a.instrs)
	b.scope = a.scope
	a.instrs = append(a.instrs, instr)
}

func (a *Assembler) keeper(kind lexKind, text string) (*lexKeeper, *parsedTree, error) {
	lk := newLexKeeper(kind, text, a.scope, a.parser)
	t, err := lk.acquire()
	if err != nil {
		return nil, nil, err
	}
	return lk, t, nil
}

// NewLabel creates an unbound label.
func (a *Assembler) NewLabel() *Label {
	l := &Label{pos: -1}
	a.labels = append(a.labels, l)
	return l
}

// Bind binds l to the next instruction.
func (a *Assembler) Bind(l *Label) {
	l.pos = len(a.instrs)
	for _, fix := range l.fixups {
		fix(l.pos)
	}
	l.fixups = nil
}

func (a *Assembler) useLabel(l *Label, set func(int)) {
	if l.Bound() {
		set(l.pos)
		return
	}
	l.fixups = append(l.fixups, set)
}

// DeclareParam declares a parameter. Parameters go first.
func (a *Assembler) DeclareParam(name string, tp *types.FieldType, mode ParamMode) error {
	if mode == ParamNone {
		mode = ParamIn
	}
	_, err := a.root.AddVariable(name, tp, mode)
	return err
}

// BeginBlock opens a BEGIN ... END scope.
func (a *Assembler) BeginBlock() *Block {
	a.scope = a.scope.PushContext(RegularScope)
	return &Block{scope: a.scope, end: a.NewLabel()}
}

// EndBlock closes b, dropping the handlers and cursors it declared.
func (a *Assembler) EndBlock(b *Block) {
	a.Bind(b.end)
	if n := len(b.scope.handlers); n > 0 {
		a.emit(&HPopInstr{Count: n})
	}
	if n := len(b.scope.cursors); n > 0 {
		a.emit(&CPopInstr{Count: n})
	}
	a.scope = b.scope.Parent()
}

// DeclareVar declares a local variable initialized to def, or NULL when def
// is empty.
func (a *Assembler) DeclareVar(name string, tp *types.FieldType, def string) (*Variable, error) {
	if strings.TrimSpace(def) == "" {
		def = "NULL"
	}
	v, err := a.scope.AddVariable(name, tp, ParamNone)
	if err != nil {
		return nil, err
	}
	lk, _, err := a.keeper(lexExpr, def)
	if err != nil {
		return nil, err
	}
	a.emit(&SetInstr{Var: v, keeper: lk})
	return v, nil
}

// DeclareCondition declares a named condition.
func (a *Assembler) DeclareCondition(name string, cv *ConditionValue) error {
	if cv.Type == ConditionSQLState && !IsValidSQLState(cv.State) {
		return ErrSpBadSQLState.GenWithStackByArgs(cv.State)
	}
	return a.scope.AddCondition(name, cv)
}

// DeclareCursor declares a cursor over query.
func (a *Assembler) DeclareCursor(name, query string) error {
	offset, err := a.scope.AddCursor(name)
	if err != nil {
		return err
	}
	lk, _, err := a.keeper(lexStmt, query)
	if err != nil {
		return err
	}
	a.emit(&CPushInstr{Offset: offset, Name: name, keeper: lk})
	return nil
}

// BeginHandler declares a handler and opens its body. The body of an EXIT
// handler ends with a jump to exitDest.
func (a *Assembler) BeginHandler(tp HandlerType, conds []*ConditionValue, exitDest *Label) (*HandlerBlock, error) {
	for _, cv := range conds {
		if cv.Type == ConditionSQLState && !IsValidSQLState(cv.State) {
			return nil, ErrSpBadSQLState.GenWithStackByArgs(cv.State)
		}
	}
	h := a.scope.AddHandler(tp)
	h.Conditions = conds
	hb := &HandlerBlock{handler: h, after: a.NewLabel(), exitDest: exitDest}
	push := &HPushJumpInstr{Handler: h, Frame: a.scope.CurrentVarCount()}
	a.emit(push)
	a.useLabel(hb.after, push.SetDest)
	a.scope = a.scope.PushContext(HandlerScope)
	return hb, nil
}

// EndHandler closes the body of hb.
func (a *Assembler) EndHandler(hb *HandlerBlock) {
	ret := &HReturnInstr{Handler: hb.handler, Frame: a.scope.CurrentVarCount()}
	a.emit(ret)
	if hb.handler.Type == HandlerExit {
		a.useLabel(hb.exitDest, ret.SetDest)
	}
	a.scope = a.scope.Parent()
	a.Bind(hb.after)
}

func (a *Assembler) findVariable(name string) (*Variable, error) {
	v := a.scope.FindVariable(name)
	if v == nil {
		return nil, ErrSpUndeclaredVar.GenWithStackByArgs(name)
	}
	return v, nil
}

// Set assigns expr to variable name.
func (a *Assembler) Set(name, expr string) error {
	v, err := a.findVariable(name)
	if err != nil {
		return err
	}
	lk, _, err := a.keeper(lexExpr, expr)
	if err != nil {
		return err
	}
	a.emit(&SetInstr{Var: v, keeper: lk})
	return nil
}

// SetTriggerField assigns expr to NEW.column.
func (a *Assembler) SetTriggerField(column, expr string) error {
	if a.tp != TypeTrigger {
		return ErrBadField.GenWithStackByArgs(column, "NEW")
	}
	lk, _, err := a.keeper(lexExpr, expr)
	if err != nil {
		return err
	}
	a.emit(&SetTriggerFieldInstr{Column: column, keeper: lk})
	return nil
}

// Stmt executes an SQL statement.
func (a *Assembler) Stmt(sql string) error {
	lk, t, err := a.keeper(lexStmt, sql)
	if err != nil {
		return err
	}
	a.emit(&StmtInstr{keeper: lk, kind: t.kind, keepsDiagnostics: t.keepsDiagnostics})
	return nil
}

// Return ends a function with expr.
func (a *Assembler) Return(expr string) error {
	if a.tp != TypeFunction {
		return ErrSpBadReturn.GenWithStackByArgs()
	}
	lk, _, err := a.keeper(lexExpr, expr)
	if err != nil {
		return err
	}
	a.emit(&FReturnInstr{Type: a.returns, keeper: lk})
	a.returned = true
	return nil
}

// Jump jumps to l.
func (a *Assembler) Jump(l *Label) {
	j := &JumpInstr{}
	a.emit(j)
	a.useLabel(l, j.SetDest)
}

// JumpIfNot jumps to dest unless cond is true. A CONTINUE handler catching
// a failure of cond resumes at cont.
func (a *Assembler) JumpIfNot(cond string, dest, cont *Label) error {
	lk, _, err := a.keeper(lexExpr, cond)
	if err != nil {
		return err
	}
	j := &JumpIfNotInstr{keeper: lk}
	a.emit(j)
	a.useLabel(dest, j.SetDest)
	a.useLabel(cont, j.SetContDest)
	return nil
}

// SetCaseExpr evaluates the operand of a simple CASE and returns the slot
// holding it.
func (a *Assembler) SetCaseExpr(expr string, cont *Label) (int, error) {
	lk, _, err := a.keeper(lexExpr, expr)
	if err != nil {
		return 0, err
	}
	idx := a.scope.NewCaseExprID()
	s := &SetCaseExprInstr{CaseIdx: idx, keeper: lk}
	a.emit(s)
	a.useLabel(cont, s.SetContDest)
	return idx, nil
}

// JumpCaseWhen jumps to dest unless the operand in slot caseIdx equals when.
func (a *Assembler) JumpCaseWhen(caseIdx int, when string, dest, cont *Label) error {
	lk := newLexKeeper(lexCaseWhen, when, a.scope, a.parser)
	lk.caseIdx = caseIdx
	if _, err := lk.acquire(); err != nil {
		return err
	}
	j := &JumpCaseWhenInstr{CaseIdx: caseIdx, keeper: lk}
	a.emit(j)
	a.useLabel(dest, j.SetDest)
	a.useLabel(cont, j.SetContDest)
	return nil
}

// Leave jumps to dest in scope target, first dropping the handlers and
// cursors of the scopes left. With exclusive set the scope just below
// target is left to the code at dest.
func (a *Assembler) Leave(target *PContext, exclusive bool, dest *Label) {
	if n := a.scope.DiffHandlers(target, exclusive); n > 0 {
		a.emit(&HPopInstr{Count: n})
	}
	if n := a.scope.DiffCursors(target, exclusive); n > 0 {
		a.emit(&CPopInstr{Count: n})
	}
	a.Jump(dest)
}

func (a *Assembler) findCursor(name string) (int, error) {
	offset, ok := a.scope.FindCursor(name)
	if !ok {
		return 0, ErrSpCursorMismatch.GenWithStackByArgs(name)
	}
	return offset, nil
}

// Open opens cursor name.
func (a *Assembler) Open(name string) error {
	offset, err := a.findCursor(name)
	if err != nil {
		return err
	}
	a.emit(&COpenInstr{Offset: offset, Name: name})
	return nil
}

// Close closes cursor name.
func (a *Assembler) Close(name string) error {
	offset, err := a.findCursor(name)
	if err != nil {
		return err
	}
	a.emit(&CCloseInstr{Offset: offset, Name: name})
	return nil
}

// Fetch fetches a row of cursor name into vars.
func (a *Assembler) Fetch(name string, vars []string) error {
	offset, err := a.findCursor(name)
	if err != nil {
		return err
	}
	fetch := &CFetchInstr{Offset: offset, Name: name}
	for _, name := range vars {
		v, err := a.findVariable(name)
		if err != nil {
			return err
		}
		fetch.Vars = append(fetch.Vars, v)
	}
	a.emit(fetch)
	return nil
}

// Error raises error code.
func (a *Assembler) Error(code uint16) {
	a.emit(newErrorInstr(code))
}

// CaseNotFound raises the error of a CASE without a matching branch.
func (a *Assembler) CaseNotFound() {
	a.Error(errno.ErrSpCaseNotFound)
}

// Signal raises a condition of SQLSTATE state. code and message override
// the class defaults when set; message is an expression.
func (a *Assembler) Signal(state string, code uint16, message string) error {
	if !IsValidSQLState(state) {
		return ErrSpBadSQLState.GenWithStackByArgs(state)
	}
	s := &SignalInstr{State: state, Code: code}
	if strings.TrimSpace(message) != "" {
		lk, _, err := a.keeper(lexExpr, message)
		if err != nil {
			return err
		}
		s.message = lk
	}
	a.emit(s)
	return nil
}

// Call calls procedure name with the comma separated argument expressions.
func (a *Assembler) Call(name, args string) error {
	lk, _, err := a.keeper(lexExprList, args)
	if err != nil {
		return err
	}
	a.emit(&CallInstr{Name: name, args: lk})
	return nil
}

// Build finishes the routine.
func (a *Assembler) Build() (*Routine, error) {
	for _, l := range a.labels {
		if !l.Bound() && len(l.fixups) > 0 {
			return nil, errors.Errorf("routine %s refers to an unbound label", a.name)
		}
	}
	if a.scope != a.root {
		return nil, errors.Errorf("routine %s has an unclosed block", a.name)
	}
	if a.tp == TypeFunction && !a.returned {
		return nil, ErrSpNoReturn.GenWithStackByArgs(a.name)
	}
	instrs := a.instrs
	if a.optimize {
		instrs = optimize(instrs)
	}
	return &Routine{
		tp:      a.tp,
		name:    a.name,
		pctx:    a.root,
		instrs:  instrs,
		returns: a.returns,
		parser:  a.parser,
	}, nil
}
