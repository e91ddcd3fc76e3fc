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
	"fmt"
	"strings"

	"github.com/pingcap/tidb-routine/pkg/diagnostics"
	"github.com/pingcap/tidb-routine/pkg/types"
)

// ScopeType tells how a scope was opened.
type ScopeType int

const (
	// RegularScope is opened by BEGIN ... END.
	RegularScope ScopeType = iota
	// HandlerScope holds the body of a condition handler.
	HandlerScope
)

// ParamMode is the mode of a routine parameter.
type ParamMode int

// Parameter modes. ParamNone marks local variables.
const (
	ParamNone ParamMode = iota
	ParamIn
	ParamOut
	ParamInOut
)

// String implements fmt.Stringer interface.
func (m ParamMode) String() string {
	switch m {
	case ParamIn:
		return "IN"
	case ParamOut:
		return "OUT"
	case ParamInOut:
		return "INOUT"
	}
	return ""
}

// Variable is a routine parameter or local variable.
type Variable struct {
	Name string
	// Offset is the slot of the variable in the runtime frame. Slots are
	// never shared, sibling scopes get distinct ones.
	Offset int
	Type   *types.FieldType
	Mode   ParamMode
}

// ConditionType is the kind of a handler condition value.
type ConditionType int

// Condition value kinds, ordered from the most to the least specific.
const (
	ConditionErrorCode ConditionType = iota
	ConditionSQLState
	ConditionWarning
	ConditionNotFound
	ConditionException
)

// ConditionValue is one condition a handler is declared for.
type ConditionValue struct {
	Type  ConditionType
	Code  uint16
	State string
}

// String implements fmt.Stringer interface.
func (c *ConditionValue) String() string {
	switch c.Type {
	case ConditionErrorCode:
		return fmt.Sprintf("%d", c.Code)
	case ConditionSQLState:
		return fmt.Sprintf("SQLSTATE '%s'", c.State)
	case ConditionWarning:
		return "SQLWARNING"
	case ConditionNotFound:
		return "NOT FOUND"
	}
	return "SQLEXCEPTION"
}

// IsValidSQLState reports whether state is five digits or upper-case
// letters and not of the successful completion class.
func IsValidSQLState(state string) bool {
	if len(state) != 5 || strings.HasPrefix(state, "00") {
		return false
	}
	for _, c := range state {
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

func isWarningState(state string) bool {
	return strings.HasPrefix(state, "01")
}

func isNotFoundState(state string) bool {
	return strings.HasPrefix(state, "02")
}

func isExceptionState(state string) bool {
	return len(state) >= 2 && state[:2] != "00" && state[:2] != "01" && state[:2] != "02"
}

// HandlerType is CONTINUE or EXIT.
type HandlerType int

// Handler types.
const (
	HandlerExit HandlerType = iota
	HandlerContinue
)

// String implements fmt.Stringer interface.
func (t HandlerType) String() string {
	if t == HandlerContinue {
		return "CONTINUE"
	}
	return "EXIT"
}

// Handler is a declared condition handler.
type Handler struct {
	Type HandlerType
	// Scope is the scope the handler is declared in.
	Scope      *PContext
	Conditions []*ConditionValue
}

type namedCondition struct {
	name  string
	value *ConditionValue
}

// PContext is a lexical scope of a routine. The root scope holds the
// parameters; each BEGIN ... END block and each handler body opens a child.
// A PContext is immutable once the routine is compiled and is shared by all
// invocations.
type PContext struct {
	parent    *PContext
	scopeType ScopeType
	level     int

	vars       []*Variable
	conditions []namedCondition
	cursors    []string
	handlers   []*Handler
	// cursorOffset is the number of cursors declared in the enclosing scopes.
	cursorOffset int

	// The fields below are only used on the root.
	allVars      []*Variable
	maxCursors   int
	numCaseExprs int
}

// NewPContext creates the root scope of a routine.
func NewPContext() *PContext {
	return &PContext{}
}

func (pc *PContext) root() *PContext {
	for pc.parent != nil {
		pc = pc.parent
	}
	return pc
}

// PushContext opens a child scope.
func (pc *PContext) PushContext(tp ScopeType) *PContext {
	return &PContext{
		parent:       pc,
		scopeType:    tp,
		level:        pc.level + 1,
		cursorOffset: pc.CurrentCursorCount(),
	}
}

// Parent returns the enclosing scope, nil for the root.
func (pc *PContext) Parent() *PContext {
	return pc.parent
}

// Level returns the nesting level, 0 for the root.
func (pc *PContext) Level() int {
	return pc.level
}

// ScopeType returns how the scope was opened.
func (pc *PContext) ScopeType() ScopeType {
	return pc.scopeType
}

// AddVariable declares a variable in this scope.
func (pc *PContext) AddVariable(name string, tp *types.FieldType, mode ParamMode) (*Variable, error) {
	if pc.findVariableInScope(name) != nil {
		if mode != ParamNone {
			return nil, ErrSpDupParam.GenWithStackByArgs(name)
		}
		return nil, ErrSpDupVar.GenWithStackByArgs(name)
	}
	root := pc.root()
	v := &Variable{Name: name, Offset: len(root.allVars), Type: tp, Mode: mode}
	pc.vars = append(pc.vars, v)
	root.allVars = append(root.allVars, v)
	return v, nil
}

func (pc *PContext) findVariableInScope(name string) *Variable {
	for i := len(pc.vars) - 1; i >= 0; i-- {
		if strings.EqualFold(pc.vars[i].Name, name) {
			return pc.vars[i]
		}
	}
	return nil
}

// FindVariable looks a variable up from this scope outward.
func (pc *PContext) FindVariable(name string) *Variable {
	for p := pc; p != nil; p = p.parent {
		if v := p.findVariableInScope(name); v != nil {
			return v
		}
	}
	return nil
}

// LookupVariable implements expression.Resolver interface.
func (pc *PContext) LookupVariable(name string) (int, bool) {
	if v := pc.FindVariable(name); v != nil {
		return v.Offset, true
	}
	return 0, false
}

// Variables returns every variable of the routine ordered by slot. It must
// be called on the root.
func (pc *PContext) Variables() []*Variable {
	return pc.root().allVars
}

// Params returns the routine parameters.
func (pc *PContext) Params() []*Variable {
	var params []*Variable
	for _, v := range pc.root().vars {
		if v.Mode != ParamNone {
			params = append(params, v)
		}
	}
	return params
}

// MaxVarIndex returns the number of variable slots the routine needs.
func (pc *PContext) MaxVarIndex() int {
	return len(pc.root().allVars)
}

// CurrentVarCount returns the number of slots in use by this scope and the
// scopes enclosing it.
func (pc *PContext) CurrentVarCount() int {
	n := 0
	for p := pc; p != nil; p = p.parent {
		if len(p.vars) > 0 {
			n = max(n, p.vars[len(p.vars)-1].Offset+1)
		}
	}
	return n
}

// AddCondition declares a named condition.
func (pc *PContext) AddCondition(name string, value *ConditionValue) error {
	for _, c := range pc.conditions {
		if strings.EqualFold(c.name, name) {
			return ErrSpDupCond.GenWithStackByArgs(name)
		}
	}
	pc.conditions = append(pc.conditions, namedCondition{name: name, value: value})
	return nil
}

// FindCondition looks a named condition up from this scope outward.
func (pc *PContext) FindCondition(name string) *ConditionValue {
	for p := pc; p != nil; p = p.parent {
		for i := len(p.conditions) - 1; i >= 0; i-- {
			if strings.EqualFold(p.conditions[i].name, name) {
				return p.conditions[i].value
			}
		}
	}
	return nil
}

// AddCursor declares a cursor and returns its stack offset.
func (pc *PContext) AddCursor(name string) (int, error) {
	for _, c := range pc.cursors {
		if strings.EqualFold(c, name) {
			return 0, ErrSpDupCurs.GenWithStackByArgs(name)
		}
	}
	pc.cursors = append(pc.cursors, name)
	root := pc.root()
	root.maxCursors = max(root.maxCursors, pc.CurrentCursorCount())
	return pc.CurrentCursorCount() - 1, nil
}

// FindCursor looks a cursor up from this scope outward.
func (pc *PContext) FindCursor(name string) (int, bool) {
	for p := pc; p != nil; p = p.parent {
		for i := len(p.cursors) - 1; i >= 0; i-- {
			if strings.EqualFold(p.cursors[i], name) {
				return p.cursorOffset + i, true
			}
		}
	}
	return 0, false
}

// CurrentCursorCount returns the number of cursors visible in this scope.
func (pc *PContext) CurrentCursorCount() int {
	return pc.cursorOffset + len(pc.cursors)
}

// MaxCursorIndex returns the deepest cursor stack the routine can build.
func (pc *PContext) MaxCursorIndex() int {
	return pc.root().maxCursors
}

// AddHandler declares a handler in this scope.
func (pc *PContext) AddHandler(tp HandlerType) *Handler {
	h := &Handler{Type: tp, Scope: pc}
	pc.handlers = append(pc.handlers, h)
	return h
}

// NewCaseExprID allocates a slot for the operand of a simple CASE.
func (pc *PContext) NewCaseExprID() int {
	root := pc.root()
	root.numCaseExprs++
	return root.numCaseExprs - 1
}

// NumCaseExprs returns the number of simple CASE operand slots.
func (pc *PContext) NumCaseExprs() int {
	return pc.root().numCaseExprs
}

// DiffHandlers returns the number of handlers declared between this scope
// and the ancestor target. With exclusive set, the handlers of the child of
// target on the path are not counted, the code at the end of that block pops
// them.
func (pc *PContext) DiffHandlers(target *PContext, exclusive bool) int {
	return pc.diff(target, exclusive, func(p *PContext) int { return len(p.handlers) })
}

// DiffCursors is DiffHandlers for cursors.
func (pc *PContext) DiffCursors(target *PContext, exclusive bool) int {
	return pc.diff(target, exclusive, func(p *PContext) int { return len(p.cursors) })
}

func (pc *PContext) diff(target *PContext, exclusive bool, count func(*PContext) int) int {
	n := 0
	var last *PContext
	p := pc
	for ; p != nil && p != target; p = p.parent {
		n += count(p)
		last = p
	}
	if p == nil {
		return 0
	}
	if exclusive && last != nil {
		n -= count(last)
	}
	return n
}

// FindHandler returns the handler for a condition raised by code in this
// scope. Within a scope an error code match beats an SQLSTATE match, which
// beats a class match (SQLWARNING, NOT FOUND, SQLEXCEPTION). When the scope
// has no match, the search continues in the scope enclosing the block that
// declared the running handler body, if any.
func (pc *PContext) FindHandler(state string, code uint16, level diagnostics.Level) *Handler {
	var found *Handler
	var foundCV *ConditionValue
	for _, h := range pc.handlers {
		for _, cv := range h.Conditions {
			switch cv.Type {
			case ConditionErrorCode:
				if cv.Code == code && (foundCV == nil || foundCV.Type > ConditionErrorCode) {
					found, foundCV = h, cv
				}
			case ConditionSQLState:
				if cv.State == state && (foundCV == nil || foundCV.Type > ConditionSQLState) {
					found, foundCV = h, cv
				}
			case ConditionWarning:
				if (isWarningState(state) || level == diagnostics.LevelWarning) && foundCV == nil {
					found, foundCV = h, cv
				}
			case ConditionNotFound:
				if isNotFoundState(state) && foundCV == nil {
					found, foundCV = h, cv
				}
			case ConditionException:
				if isExceptionState(state) && level == diagnostics.LevelError && foundCV == nil {
					found, foundCV = h, cv
				}
			}
		}
	}
	if found != nil {
		return found
	}
	p := pc
	for p != nil && p.scopeType == HandlerScope {
		p = p.parent
	}
	if p == nil || p.parent == nil {
		return nil
	}
	return p.parent.FindHandler(state, code, level)
}
