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

package testkit

import (
	"github.com/pingcap/tidb-routine/pkg/sp"
	"github.com/pingcap/tidb-routine/pkg/sp/compile"
)

// MustAddRoutine compiles def and makes it callable from the session.
func (tk *TestKit) MustAddRoutine(def *compile.Routine) *sp.Routine {
	r := MustCompile(tk.t, def)
	tk.resolver.Add(r)
	return r
}

// Procedure returns the definition of a procedure.
func Procedure(name string, params []compile.Param, body ...*compile.Stmt) *compile.Routine {
	return &compile.Routine{Type: "procedure", Name: name, Params: params, Body: body}
}

// Function returns the definition of a function.
func Function(name, returns string, params []compile.Param, body ...*compile.Stmt) *compile.Routine {
	return &compile.Routine{Type: "function", Name: name, Params: params, Returns: returns, Body: body}
}

// Trigger returns the definition of a trigger.
func Trigger(name string, body ...*compile.Stmt) *compile.Routine {
	return &compile.Routine{Type: "trigger", Name: name, Body: body}
}

// In declares an IN parameter.
func In(name, tp string) compile.Param { return compile.Param{Name: name, Type: tp, Mode: "IN"} }

// Out declares an OUT parameter.
func Out(name, tp string) compile.Param { return compile.Param{Name: name, Type: tp, Mode: "OUT"} }

// InOut declares an INOUT parameter.
func InOut(name, tp string) compile.Param { return compile.Param{Name: name, Type: tp, Mode: "INOUT"} }

// Params groups parameters.
func Params(params ...compile.Param) []compile.Param { return params }

// Block is BEGIN ... END.
func Block(body ...*compile.Stmt) *compile.Stmt {
	return &compile.Stmt{Kind: "block", Body: body}
}

// LabeledBlock is label: BEGIN ... END label.
func LabeledBlock(label string, body ...*compile.Stmt) *compile.Stmt {
	return &compile.Stmt{Kind: "block", Label: label, Body: body}
}

// Declare is DECLARE name tp [DEFAULT def].
func Declare(name, tp, def string) *compile.Stmt {
	return &compile.Stmt{Kind: "declare", Name: name, Type: tp, Default: def}
}

// DeclareCondition is DECLARE name CONDITION FOR SQLSTATE state.
func DeclareCondition(name, state string) *compile.Stmt {
	return &compile.Stmt{Kind: "condition", Name: name, State: state}
}

// DeclareCursor is DECLARE name CURSOR FOR query.
func DeclareCursor(name, query string) *compile.Stmt {
	return &compile.Stmt{Kind: "cursor", Name: name, SQL: query}
}

// ContinueHandler is DECLARE CONTINUE HANDLER FOR conds body.
func ContinueHandler(conds []string, body ...*compile.Stmt) *compile.Stmt {
	return &compile.Stmt{Kind: "handler", Handler: "continue", Conditions: conds, Body: body}
}

// ExitHandler is DECLARE EXIT HANDLER FOR conds body.
func ExitHandler(conds []string, body ...*compile.Stmt) *compile.Stmt {
	return &compile.Stmt{Kind: "handler", Handler: "exit", Conditions: conds, Body: body}
}

// Conds groups handler conditions.
func Conds(conds ...string) []string { return conds }

// Set is SET name = expr.
func Set(name, expr string) *compile.Stmt {
	return &compile.Stmt{Kind: "set", Name: name, Expr: expr}
}

// SQL is an SQL statement.
func SQL(text string) *compile.Stmt {
	return &compile.Stmt{Kind: "sql", SQL: text}
}

// If is IF cond THEN then ELSE els END IF.
func If(cond string, then []*compile.Stmt, els ...*compile.Stmt) *compile.Stmt {
	return &compile.Stmt{Kind: "if", Cond: cond, Then: then, Else: els}
}

// Stmts groups statements.
func Stmts(stmts ...*compile.Stmt) []*compile.Stmt { return stmts }

// While is label: WHILE cond DO body END WHILE.
func While(label, cond string, body ...*compile.Stmt) *compile.Stmt {
	return &compile.Stmt{Kind: "while", Label: label, Cond: cond, Body: body}
}

// Repeat is label: REPEAT body UNTIL cond END REPEAT.
func Repeat(label, cond string, body ...*compile.Stmt) *compile.Stmt {
	return &compile.Stmt{Kind: "repeat", Label: label, Cond: cond, Body: body}
}

// Loop is label: LOOP body END LOOP.
func Loop(label string, body ...*compile.Stmt) *compile.Stmt {
	return &compile.Stmt{Kind: "loop", Label: label, Body: body}
}

// Leave is LEAVE label.
func Leave(label string) *compile.Stmt {
	return &compile.Stmt{Kind: "leave", Target: label}
}

// Iterate is ITERATE label.
func Iterate(label string) *compile.Stmt {
	return &compile.Stmt{Kind: "iterate", Target: label}
}

// Open is OPEN cursor.
func Open(cursor string) *compile.Stmt {
	return &compile.Stmt{Kind: "open", Cursor: cursor}
}

// Fetch is FETCH cursor INTO vars.
func Fetch(cursor string, vars ...string) *compile.Stmt {
	return &compile.Stmt{Kind: "fetch", Cursor: cursor, Into: vars}
}

// Close is CLOSE cursor.
func Close(cursor string) *compile.Stmt {
	return &compile.Stmt{Kind: "close", Cursor: cursor}
}

// Return is RETURN expr.
func Return(expr string) *compile.Stmt {
	return &compile.Stmt{Kind: "return", Expr: expr}
}

// Signal is SIGNAL SQLSTATE state SET MYSQL_ERRNO = code, MESSAGE_TEXT = msg.
func Signal(state string, code uint16, msg string) *compile.Stmt {
	return &compile.Stmt{Kind: "signal", State: state, Code: code, Message: msg}
}

// Call is CALL name(args).
func Call(name, args string) *compile.Stmt {
	return &compile.Stmt{Kind: "call", Name: name, Args: args}
}
