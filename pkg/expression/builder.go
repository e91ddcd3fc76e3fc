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

package expression

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/parser/ast"
	"github.com/pingcap/parser/format"
	"github.com/pingcap/parser/opcode"
	"github.com/pingcap/tidb-routine/pkg/types"
)

// Resolver resolves the routine variables visible where an expression is
// written.
type Resolver interface {
	// LookupVariable returns the frame slot of the variable called name.
	LookupVariable(name string) (idx int, ok bool)
}

var binaryOps = map[opcode.Op]string{
	opcode.Plus:     opPlus,
	opcode.Minus:    opMinus,
	opcode.Mul:      opMul,
	opcode.Div:      opDiv,
	opcode.IntDiv:   opIntDiv,
	opcode.Mod:      opMod,
	opcode.EQ:       opEQ,
	opcode.NE:       opNE,
	opcode.LT:       opLT,
	opcode.LE:       opLE,
	opcode.GT:       opGT,
	opcode.GE:       opGE,
	opcode.NullEQ:   opNullEQ,
	opcode.LogicAnd: opAnd,
	opcode.LogicOr:  opOr,
	opcode.LogicXor: opXor,
}

// BuildExpression converts a parsed expression into an evaluable one.
// Unqualified column names resolve to routine variables; NEW.col and OLD.col
// resolve to trigger row fields.
func BuildExpression(node ast.ExprNode, r Resolver) (Expression, error) {
	b := &exprBuilder{resolver: r}
	return b.build(node)
}

type exprBuilder struct {
	resolver Resolver
}

func (b *exprBuilder) buildList(nodes []ast.ExprNode) ([]Expression, error) {
	exprs := make([]Expression, 0, len(nodes))
	for _, node := range nodes {
		expr, err := b.build(node)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	return exprs, nil
}

func (b *exprBuilder) build(node ast.ExprNode) (Expression, error) {
	switch x := node.(type) {
	case ast.ValueExpr:
		return NewConstant(valueToDatum(x.GetValue())), nil
	case *ast.ParenthesesExpr:
		return b.build(x.Expr)
	case *ast.ColumnNameExpr:
		return b.buildColumn(x.Name)
	case *ast.VariableExpr:
		if x.IsSystem || x.Value != nil {
			return nil, ErrNotSupportedYet.GenWithStackByArgs("system variables or assignments in routine expressions")
		}
		return &UserVar{Name: strings.ToLower(x.Name)}, nil
	case *ast.BinaryOperationExpr:
		name, ok := binaryOps[x.Op]
		if !ok {
			return nil, ErrNotSupportedYet.GenWithStackByArgs("operator " + x.Op.String())
		}
		return b.buildFunction(name, x.L, x.R)
	case *ast.UnaryOperationExpr:
		switch x.Op {
		case opcode.Minus:
			return b.buildFunction(opUnaryMinus, x.V)
		case opcode.Plus:
			return b.build(x.V)
		case opcode.Not:
			return b.buildFunction(opNot, x.V)
		}
		return nil, ErrNotSupportedYet.GenWithStackByArgs("operator " + x.Op.String())
	case *ast.IsNullExpr:
		return b.negate(b.buildFunction(opIsNull, x.Expr))(x.Not)
	case *ast.IsTruthExpr:
		name := opIsTrue
		if x.True == 0 {
			name = opIsFalse
		}
		return b.negate(b.buildFunction(name, x.Expr))(x.Not)
	case *ast.BetweenExpr:
		return b.negate(b.buildFunction(opBetween, x.Expr, x.Left, x.Right))(x.Not)
	case *ast.PatternInExpr:
		if x.Sel != nil {
			return nil, ErrNotSupportedYet.GenWithStackByArgs("IN subquery in routine expressions")
		}
		return b.negate(b.buildFunction(opIn, append([]ast.ExprNode{x.Expr}, x.List...)...))(x.Not)
	case *ast.PatternLikeExpr:
		args := []ast.ExprNode{x.Expr, x.Pattern}
		fn, err := b.buildFunction(opLike, args...)
		if err == nil && x.Escape != '\\' {
			fn.(*ScalarFunction).Args = append(fn.(*ScalarFunction).Args, NewConstant(types.NewStringDatum(string(x.Escape))))
		}
		return b.negate(fn, err)(x.Not)
	case *ast.CaseExpr:
		return b.buildCase(x)
	case *ast.FuncCallExpr:
		if IsBuiltin(x.FnName.L) {
			return b.buildFunction(x.FnName.L, x.Args...)
		}
		args, err := b.buildList(x.Args)
		if err != nil {
			return nil, err
		}
		return &StoredFuncCall{Name: x.FnName.O, Args: args}, nil
	case *ast.FuncCastExpr:
		arg, err := b.build(x.Expr)
		if err != nil {
			return nil, err
		}
		return &Cast{Expr: arg, Tp: x.Tp}, nil
	case *ast.SubqueryExpr:
		text, err := restore(x.Query)
		if err != nil {
			return nil, err
		}
		return &Subquery{Text: text}, nil
	case *ast.ExistsSubqueryExpr:
		text, err := restore(x)
		if err != nil {
			return nil, err
		}
		return &Subquery{Text: "SELECT " + text}, nil
	case *ast.RowExpr:
		return nil, ErrOperandColumns.GenWithStackByArgs(1)
	}
	return nil, ErrNotSupportedYet.GenWithStackByArgs(fmt.Sprintf("%T in routine expressions", node))
}

func (b *exprBuilder) buildColumn(name *ast.ColumnName) (Expression, error) {
	if name.Schema.L == "" {
		switch name.Table.L {
		case "":
			if b.resolver != nil {
				if idx, ok := b.resolver.LookupVariable(name.Name.L); ok {
					return &SPVariable{Name: name.Name.O, Idx: idx}, nil
				}
			}
		case "new":
			return &TriggerField{Name: name.Name.O}, nil
		case "old":
			return &TriggerField{Old: true, Name: name.Name.O}, nil
		}
	}
	return nil, ErrBadField.GenWithStackByArgs(name.String(), "field list")
}

func (b *exprBuilder) buildFunction(name string, nodes ...ast.ExprNode) (Expression, error) {
	args, err := b.buildList(nodes)
	if err != nil {
		return nil, err
	}
	sf, err := NewFunction(name, args...)
	if err != nil {
		return nil, err
	}
	return sf, nil
}

// negate wraps the built expression in NOT when not is set.
func (*exprBuilder) negate(expr Expression, err error) func(not bool) (Expression, error) {
	return func(not bool) (Expression, error) {
		if err != nil || !not {
			return expr, err
		}
		return NewFunctionInternal(opNot, expr), nil
	}
}

func (b *exprBuilder) buildCase(x *ast.CaseExpr) (Expression, error) {
	c := &CaseWhen{}
	var err error
	if x.Value != nil {
		if c.Value, err = b.build(x.Value); err != nil {
			return nil, err
		}
	}
	for _, clause := range x.WhenClauses {
		when, err := b.build(clause.Expr)
		if err != nil {
			return nil, err
		}
		then, err := b.build(clause.Result)
		if err != nil {
			return nil, err
		}
		c.Whens = append(c.Whens, when)
		c.Thens = append(c.Thens, then)
	}
	if x.ElseClause != nil {
		if c.Else, err = b.build(x.ElseClause); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func restore(node ast.Node) (string, error) {
	var sb strings.Builder
	if err := node.Restore(format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)); err != nil {
		return "", errors.Trace(err)
	}
	return sb.String(), nil
}

// valueToDatum converts a literal produced by the parser.
func valueToDatum(v any) types.Datum {
	switch x := v.(type) {
	case nil, int64, uint64, float64, string, []byte:
		return types.NewDatum(x)
	case fmt.Stringer:
		// decimal literals keep their scale
		s := x.String()
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.NewStringDatum(s)
		}
		frac := 0
		if i := strings.IndexByte(s, '.'); i >= 0 {
			frac = len(s) - i - 1
		}
		return types.NewDecimalDatum(f, frac)
	}
	return types.NewDatum(v)
}
