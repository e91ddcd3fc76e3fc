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

	"github.com/pingcap/errors"
	"github.com/pingcap/parser/ast"
	"github.com/pingcap/parser/format"
	"github.com/pingcap/tidb-routine/pkg/config"
	"github.com/pingcap/tidb-routine/pkg/types"
)

// varRefExpr replaces a reference to a routine variable in a statement. It
// restores as the current value of the variable, wrapped in NAME_CONST when
// the text is meant for the binary log.
type varRefExpr struct {
	*ast.ColumnNameExpr
	name     string
	value    types.Datum
	nameForm *bool
}

// Restore implements ast.Node interface.
func (n *varRefExpr) Restore(ctx *format.RestoreCtx) error {
	lit := n.value.ToSQLLiteral()
	if *n.nameForm {
		ctx.WritePlain(fmt.Sprintf("NAME_CONST('%s',%s)", strings.ReplaceAll(n.name, "'", "''"), lit))
		return nil
	}
	ctx.WritePlain(lit)
	return nil
}

// Accept implements ast.Node interface.
func (n *varRefExpr) Accept(v ast.Visitor) (ast.Node, bool) {
	newNode, skip := v.Enter(n)
	if skip {
		return v.Leave(newNode)
	}
	return v.Leave(n)
}

// varRefVisitor finds unqualified column names that resolve to routine
// variables. A variable shadows a column of the same name.
type varRefVisitor struct {
	scope *PContext
	// value is nil when only detecting references.
	value    func(v *Variable) types.Datum
	nameForm *bool
	found    bool
}

// Enter implements ast.Visitor interface.
func (v *varRefVisitor) Enter(n ast.Node) (ast.Node, bool) {
	return n, false
}

// Leave implements ast.Visitor interface.
func (v *varRefVisitor) Leave(n ast.Node) (ast.Node, bool) {
	col, ok := n.(*ast.ColumnNameExpr)
	if !ok || col.Name.Table.L != "" {
		return n, true
	}
	variable := v.scope.FindVariable(col.Name.Name.O)
	if variable == nil {
		return n, true
	}
	v.found = true
	if v.value == nil {
		return n, true
	}
	return &varRefExpr{ColumnNameExpr: col, name: variable.Name, value: v.value(variable), nameForm: v.nameForm}, true
}

func hasVarRefs(stmt ast.StmtNode, scope *PContext) bool {
	v := &varRefVisitor{scope: scope}
	stmt.Accept(v)
	return v.found
}

func restore(node ast.Node) (string, error) {
	var sb strings.Builder
	if err := node.Restore(format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)); err != nil {
		return "", errors.Trace(err)
	}
	return sb.String(), nil
}

// buildStmt returns the statement to hand to the executor. Without variable
// references the source text is used as is. Otherwise the text is parsed
// again, since the cached tree is shared, and each reference replaced by the
// current value.
func (ec *ExecContext) buildStmt(lk *lexKeeper, t *parsedTree) (*Stmt, error) {
	if !t.hasVarRefs {
		return &Stmt{Text: lk.text, LogText: lk.text, Node: t.stmt}, nil
	}
	node, err := lk.parser.ParseStmt(lk.text)
	if err != nil {
		return nil, err
	}
	return ec.substitute(node, lk.scope)
}

func (ec *ExecContext) substitute(node ast.StmtNode, scope *PContext) (*Stmt, error) {
	nameForm := false
	v := &varRefVisitor{
		scope:    scope,
		value:    func(v *Variable) types.Datum { return ec.rctx.vars[v.Offset] },
		nameForm: &nameForm,
	}
	newNode, _ := node.Accept(v)
	node = newNode.(ast.StmtNode)
	text, err := restore(node)
	if err != nil {
		return nil, err
	}
	logText := text
	if ec.sess.cfg.Routine.BinlogFormat == config.BinlogFormatStatement {
		nameForm = true
		if logText, err = restore(node); err != nil {
			return nil, err
		}
		nameForm = false
	}
	return &Stmt{Text: text, LogText: logText, Node: node}, nil
}

// rewriteQuery substitutes variables in the text of a subquery.
func (ec *ExecContext) rewriteQuery(text string) (*Stmt, error) {
	node, err := ec.routine.parser.ParseStmt(text)
	if err != nil {
		return nil, err
	}
	scope := ec.routine.pctx
	if ec.ip < len(ec.routine.instrs) {
		scope = ec.routine.instrs[ec.ip].Scope()
	}
	if !hasVarRefs(node, scope) {
		return &Stmt{Text: text, LogText: text, Node: node}, nil
	}
	return ec.substitute(node, scope)
}
