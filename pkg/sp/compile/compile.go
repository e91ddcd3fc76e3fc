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

package compile

import (
	"strconv"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/tidb-routine/pkg/sp"
	"github.com/pingcap/tidb-routine/pkg/types"
)

type label struct {
	name  string
	scope *sp.PContext
	// exclusive is set for block labels: the block scope itself is dropped
	// by the code at the end label.
	exclusive bool
	start     *sp.Label
	end       *sp.Label
	// boundary marks the start of a handler body. Labels outside it are
	// not visible.
	boundary bool
}

type compiler struct {
	a      *sp.Assembler
	labels []*label
	blocks []*sp.Block
	end    *sp.Label
}

// Compile compiles def into an executable routine.
func Compile(def *Routine) (*sp.Routine, error) {
	tp, err := ParseRoutineType(def.Type)
	if err != nil {
		return nil, err
	}
	c := &compiler{a: sp.NewAssembler(tp, def.Name)}
	c.end = c.a.NewLabel()
	if tp == sp.TypeFunction {
		if def.Returns == "" {
			return nil, errors.Errorf("function %s has no return type", def.Name)
		}
		ft, err := types.ParseFieldType(def.Returns)
		if err != nil {
			return nil, err
		}
		c.a.SetReturns(ft)
	}
	for _, p := range def.Params {
		mode, err := ParseParamMode(p.Mode)
		if err != nil {
			return nil, err
		}
		if tp != sp.TypeProcedure && mode != sp.ParamIn {
			return nil, errors.Errorf("%s parameter %s must be IN", strings.ToLower(tp.String()), p.Name)
		}
		ft, err := types.ParseFieldType(p.Type)
		if err != nil {
			return nil, err
		}
		if err := c.a.DeclareParam(p.Name, ft, mode); err != nil {
			return nil, err
		}
	}
	if err := c.stmts(def.Body); err != nil {
		return nil, err
	}
	c.a.Bind(c.end)
	return c.a.Build()
}

// ParseRoutineType parses PROCEDURE, FUNCTION or TRIGGER.
func ParseRoutineType(s string) (sp.RoutineType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PROCEDURE", "":
		return sp.TypeProcedure, nil
	case "FUNCTION":
		return sp.TypeFunction, nil
	case "TRIGGER":
		return sp.TypeTrigger, nil
	}
	return 0, errors.Errorf("unknown routine type %q", s)
}

// ParseParamMode parses IN, OUT or INOUT. Empty means IN.
func ParseParamMode(s string) (sp.ParamMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "IN", "":
		return sp.ParamIn, nil
	case "OUT":
		return sp.ParamOut, nil
	case "INOUT":
		return sp.ParamInOut, nil
	}
	return 0, errors.Errorf("unknown parameter mode %q", s)
}

// ParseConditionValue parses a handler condition: SQLWARNING, NOT FOUND,
// SQLEXCEPTION, SQLSTATE [VALUE] 'xxxxx', an error code or the name of a
// condition declared in scope.
func ParseConditionValue(scope *sp.PContext, s string) (*sp.ConditionValue, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	switch strings.Join(strings.Fields(upper), " ") {
	case "SQLWARNING":
		return &sp.ConditionValue{Type: sp.ConditionWarning}, nil
	case "NOT FOUND":
		return &sp.ConditionValue{Type: sp.ConditionNotFound}, nil
	case "SQLEXCEPTION":
		return &sp.ConditionValue{Type: sp.ConditionException}, nil
	}
	if strings.HasPrefix(upper, "SQLSTATE") {
		state := strings.TrimSpace(s[len("SQLSTATE"):])
		if strings.HasPrefix(strings.ToUpper(state), "VALUE") {
			state = strings.TrimSpace(state[len("VALUE"):])
		}
		state = strings.Trim(state, `'"`)
		if !sp.IsValidSQLState(state) {
			return nil, sp.ErrSpBadSQLState.GenWithStackByArgs(state)
		}
		return &sp.ConditionValue{Type: sp.ConditionSQLState, State: state}, nil
	}
	if code, err := strconv.ParseUint(s, 10, 16); err == nil {
		if code == 0 {
			return nil, errors.Errorf("invalid condition value %q", s)
		}
		return &sp.ConditionValue{Type: sp.ConditionErrorCode, Code: uint16(code)}, nil
	}
	if cv := scope.FindCondition(s); cv != nil {
		return cv, nil
	}
	return nil, sp.ErrSpCondMismatch.GenWithStackByArgs(s)
}

func (c *compiler) stmts(list []*Stmt) error {
	for _, s := range list {
		if err := c.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) stmt(s *Stmt) error {
	switch strings.ToLower(s.Kind) {
	case "block":
		return c.block(s)
	case "declare":
		return c.declare(s)
	case "condition":
		return c.condition(s)
	case "cursor":
		return c.a.DeclareCursor(s.Name, s.SQL)
	case "handler":
		return c.handler(s)
	case "set":
		if col, ok := triggerField(s.Name); ok {
			return c.a.SetTriggerField(col, s.Expr)
		}
		return c.a.Set(s.Name, s.Expr)
	case "sql":
		return c.a.Stmt(s.SQL)
	case "if":
		return c.ifStmt(s)
	case "case":
		if s.Value != "" {
			return c.simpleCase(s)
		}
		return c.searchedCase(s)
	case "while", "repeat", "loop":
		return c.loop(s)
	case "leave":
		l, err := c.findLabel("LEAVE", s.Target)
		if err != nil {
			return err
		}
		c.a.Leave(l.scope, l.exclusive, l.end)
		return nil
	case "iterate":
		l, err := c.findLabel("ITERATE", s.Target)
		if err != nil {
			return err
		}
		if l.start == nil {
			return sp.ErrSpLilabelMismatch.GenWithStackByArgs("ITERATE", s.Target)
		}
		c.a.Leave(l.scope, false, l.start)
		return nil
	case "open":
		return c.a.Open(s.Cursor)
	case "fetch":
		return c.a.Fetch(s.Cursor, s.Into)
	case "close":
		return c.a.Close(s.Cursor)
	case "return":
		return c.a.Return(s.Expr)
	case "signal":
		return c.signal(s)
	case "call":
		return c.a.Call(s.Name, s.Args)
	}
	return errors.Errorf("unknown statement kind %q", s.Kind)
}

func triggerField(name string) (string, bool) {
	if len(name) > 4 && strings.EqualFold(name[:4], "new.") {
		return name[4:], true
	}
	return "", false
}

func (c *compiler) pushLabel(l *label) error {
	if l.name != "" {
		for i := len(c.labels) - 1; i >= 0 && !c.labels[i].boundary; i-- {
			if strings.EqualFold(c.labels[i].name, l.name) {
				return sp.ErrSpLabelRedefine.GenWithStackByArgs(l.name)
			}
		}
	}
	c.labels = append(c.labels, l)
	return nil
}

func (c *compiler) popLabel() {
	c.labels = c.labels[:len(c.labels)-1]
}

func (c *compiler) findLabel(stmt, name string) (*label, error) {
	for i := len(c.labels) - 1; i >= 0 && !c.labels[i].boundary; i-- {
		if c.labels[i].name != "" && strings.EqualFold(c.labels[i].name, name) {
			return c.labels[i], nil
		}
	}
	return nil, sp.ErrSpLilabelMismatch.GenWithStackByArgs(stmt, name)
}

func (c *compiler) block(s *Stmt) error {
	outer := c.a.Scope()
	b := c.a.BeginBlock()
	if err := c.pushLabel(&label{name: s.Label, scope: outer, exclusive: true, end: b.End()}); err != nil {
		return err
	}
	c.blocks = append(c.blocks, b)
	if err := c.stmts(s.Body); err != nil {
		return err
	}
	c.blocks = c.blocks[:len(c.blocks)-1]
	c.popLabel()
	c.a.EndBlock(b)
	return nil
}

func (c *compiler) declare(s *Stmt) error {
	names := s.Names
	if len(names) == 0 {
		names = []string{s.Name}
	}
	ft, err := types.ParseFieldType(s.Type)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := c.a.DeclareVar(name, ft, s.Default); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) condition(s *Stmt) error {
	cv := &sp.ConditionValue{Type: sp.ConditionErrorCode, Code: s.Code}
	if s.State != "" {
		cv = &sp.ConditionValue{Type: sp.ConditionSQLState, State: s.State}
	} else if s.Code == 0 {
		return errors.Errorf("condition %s has neither SQLSTATE nor error code", s.Name)
	}
	return c.a.DeclareCondition(s.Name, cv)
}

func (c *compiler) handler(s *Stmt) error {
	var tp sp.HandlerType
	switch strings.ToUpper(s.Handler) {
	case "EXIT":
		tp = sp.HandlerExit
	case "CONTINUE", "":
		tp = sp.HandlerContinue
	default:
		return errors.Errorf("unknown handler type %q", s.Handler)
	}
	if len(s.Conditions) == 0 {
		return errors.New("handler without conditions")
	}
	conds := make([]*sp.ConditionValue, 0, len(s.Conditions))
	for _, text := range s.Conditions {
		cv, err := ParseConditionValue(c.a.Scope(), text)
		if err != nil {
			return err
		}
		conds = append(conds, cv)
	}
	exitDest := c.end
	if n := len(c.blocks); n > 0 {
		exitDest = c.blocks[n-1].End()
	}
	hb, err := c.a.BeginHandler(tp, conds, exitDest)
	if err != nil {
		return err
	}
	c.labels = append(c.labels, &label{boundary: true})
	if err := c.stmts(s.Body); err != nil {
		return err
	}
	c.popLabel()
	c.a.EndHandler(hb)
	return nil
}

func (c *compiler) ifStmt(s *Stmt) error {
	end := c.a.NewLabel()
	next := c.a.NewLabel()
	if err := c.a.JumpIfNot(s.Cond, next, end); err != nil {
		return err
	}
	if err := c.stmts(s.Then); err != nil {
		return err
	}
	c.a.Jump(end)
	c.a.Bind(next)
	for _, elseIf := range s.ElseIfs {
		next = c.a.NewLabel()
		if err := c.a.JumpIfNot(elseIf.Cond, next, end); err != nil {
			return err
		}
		if err := c.stmts(elseIf.Then); err != nil {
			return err
		}
		c.a.Jump(end)
		c.a.Bind(next)
	}
	if err := c.stmts(s.Else); err != nil {
		return err
	}
	c.a.Bind(end)
	return nil
}

func (c *compiler) caseElse(s *Stmt) error {
	if s.Else == nil {
		c.a.CaseNotFound()
		return nil
	}
	return c.stmts(s.Else)
}

func (c *compiler) searchedCase(s *Stmt) error {
	end := c.a.NewLabel()
	for _, when := range s.Whens {
		next := c.a.NewLabel()
		if err := c.a.JumpIfNot(when.Expr, next, end); err != nil {
			return err
		}
		if err := c.stmts(when.Then); err != nil {
			return err
		}
		c.a.Jump(end)
		c.a.Bind(next)
	}
	if err := c.caseElse(s); err != nil {
		return err
	}
	c.a.Bind(end)
	return nil
}

func (c *compiler) simpleCase(s *Stmt) error {
	end := c.a.NewLabel()
	idx, err := c.a.SetCaseExpr(s.Value, end)
	if err != nil {
		return err
	}
	for _, when := range s.Whens {
		next := c.a.NewLabel()
		if err := c.a.JumpCaseWhen(idx, when.Expr, next, end); err != nil {
			return err
		}
		if err := c.stmts(when.Then); err != nil {
			return err
		}
		c.a.Jump(end)
		c.a.Bind(next)
	}
	if err := c.caseElse(s); err != nil {
		return err
	}
	c.a.Bind(end)
	return nil
}

func (c *compiler) loop(s *Stmt) error {
	l := &label{
		name:  s.Label,
		scope: c.a.Scope(),
		start: c.a.NewLabel(),
		end:   c.a.NewLabel(),
	}
	if err := c.pushLabel(l); err != nil {
		return err
	}
	c.a.Bind(l.start)
	kind := strings.ToLower(s.Kind)
	if kind == "while" {
		if err := c.a.JumpIfNot(s.Cond, l.end, l.end); err != nil {
			return err
		}
	}
	if err := c.stmts(s.Body); err != nil {
		return err
	}
	if kind == "repeat" {
		if err := c.a.JumpIfNot(s.Cond, l.start, l.end); err != nil {
			return err
		}
	} else {
		c.a.Jump(l.start)
	}
	c.a.Bind(l.end)
	c.popLabel()
	return nil
}

func (c *compiler) signal(s *Stmt) error {
	state := s.State
	if s.Name != "" {
		cv := c.a.Scope().FindCondition(s.Name)
		if cv == nil {
			return sp.ErrSpCondMismatch.GenWithStackByArgs(s.Name)
		}
		if cv.Type != sp.ConditionSQLState {
			return errors.Errorf("SIGNAL condition %s must be defined with SQLSTATE", s.Name)
		}
		state = cv.State
	}
	return c.a.Signal(state, s.Code, s.Message)
}
