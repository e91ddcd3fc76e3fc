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
	"strings"

	"github.com/pingcap/tidb-routine/pkg/types"
)

// EvalContext provides the values an expression reads while it is
// evaluated: routine variables, CASE operands, user variables, trigger rows,
// and access to the session for subqueries and stored functions.
type EvalContext interface {
	// GetVariable returns the value of the routine variable at idx.
	GetVariable(idx int) types.Datum
	// GetCaseExpr returns the cached operand of the simple CASE at idx.
	GetCaseExpr(idx int) types.Datum
	// GetUserVar returns the value of @name.
	GetUserVar(name string) (types.Datum, bool)
	// GetTriggerField returns NEW.name or OLD.name.
	GetTriggerField(old bool, name string) (types.Datum, error)
	// AppendWarning records a warning in the current diagnostics area.
	AppendWarning(err error)
	// DivisionByZeroIsError reports whether division by zero fails the
	// expression instead of yielding NULL with a warning.
	DivisionByZeroIsError() bool
	// EvalSubquery runs a scalar subquery and returns its single value.
	EvalSubquery(text string) (types.Datum, error)
	// CallFunction invokes the stored function name.
	CallFunction(name string, args []types.Datum) (types.Datum, error)
}

// Expression represents all scalar expression in SQL.
type Expression interface {
	fmt.Stringer
	// Eval evaluates an expression.
	Eval(ctx EvalContext) (types.Datum, error)
}

// Constant stands for a constant value.
type Constant struct {
	Value types.Datum
}

// NewConstant creates a constant expression.
func NewConstant(d types.Datum) *Constant {
	return &Constant{Value: d}
}

// Eval implements Expression interface.
func (c *Constant) Eval(EvalContext) (types.Datum, error) {
	return c.Value, nil
}

// String implements fmt.Stringer interface.
func (c *Constant) String() string {
	return c.Value.ToSQLLiteral()
}

// SPVariable reads a routine variable slot.
type SPVariable struct {
	Name string
	Idx  int
}

// Eval implements Expression interface.
func (v *SPVariable) Eval(ctx EvalContext) (types.Datum, error) {
	return ctx.GetVariable(v.Idx), nil
}

// String implements fmt.Stringer interface.
func (v *SPVariable) String() string {
	return fmt.Sprintf("%s@%d", v.Name, v.Idx)
}

// CaseOperand reads the cached operand of a simple CASE statement.
type CaseOperand struct {
	Idx int
}

// Eval implements Expression interface.
func (c *CaseOperand) Eval(ctx EvalContext) (types.Datum, error) {
	return ctx.GetCaseExpr(c.Idx), nil
}

// String implements fmt.Stringer interface.
func (c *CaseOperand) String() string {
	return fmt.Sprintf("case_expr@%d", c.Idx)
}

// UserVar reads a user variable.
type UserVar struct {
	Name string
}

// Eval implements Expression interface.
func (u *UserVar) Eval(ctx EvalContext) (types.Datum, error) {
	d, ok := ctx.GetUserVar(u.Name)
	if !ok {
		return types.Datum{}, nil
	}
	return d, nil
}

// String implements fmt.Stringer interface.
func (u *UserVar) String() string {
	return "@" + u.Name
}

// TriggerField reads a column of the NEW or OLD row of a trigger.
type TriggerField struct {
	Old  bool
	Name string
}

// Eval implements Expression interface.
func (f *TriggerField) Eval(ctx EvalContext) (types.Datum, error) {
	return ctx.GetTriggerField(f.Old, f.Name)
}

// String implements fmt.Stringer interface.
func (f *TriggerField) String() string {
	if f.Old {
		return "OLD." + f.Name
	}
	return "NEW." + f.Name
}

// Subquery is a scalar subquery. Its text is sent to the statement executor.
type Subquery struct {
	Text string
}

// Eval implements Expression interface.
func (s *Subquery) Eval(ctx EvalContext) (types.Datum, error) {
	return ctx.EvalSubquery(s.Text)
}

// String implements fmt.Stringer interface.
func (s *Subquery) String() string {
	return "(" + s.Text + ")"
}

// StoredFuncCall calls a stored function.
type StoredFuncCall struct {
	Name string
	Args []Expression
}

// Eval implements Expression interface.
func (f *StoredFuncCall) Eval(ctx EvalContext) (types.Datum, error) {
	args, err := evalArgs(ctx, f.Args)
	if err != nil {
		return types.Datum{}, err
	}
	return ctx.CallFunction(f.Name, args)
}

// String implements fmt.Stringer interface.
func (f *StoredFuncCall) String() string {
	return funcString("`"+f.Name+"`", f.Args)
}

// ScalarFunction is an operator or builtin function applied to arguments.
type ScalarFunction struct {
	FuncName string
	Args     []Expression
	fn       builtinFunc
}

// Eval implements Expression interface.
func (sf *ScalarFunction) Eval(ctx EvalContext) (types.Datum, error) {
	return sf.fn(ctx, sf)
}

// String implements fmt.Stringer interface.
func (sf *ScalarFunction) String() string {
	if sym, ok := infixSymbols[sf.FuncName]; ok && len(sf.Args) == 2 {
		return fmt.Sprintf("(%s %s %s)", sf.Args[0], sym, sf.Args[1])
	}
	switch sf.FuncName {
	case opUnaryMinus:
		return fmt.Sprintf("-(%s)", sf.Args[0])
	case opNot:
		return fmt.Sprintf("(not(%s))", sf.Args[0])
	case opIsNull:
		return fmt.Sprintf("(%s is null)", sf.Args[0])
	case opIsTrue:
		return fmt.Sprintf("(%s is true)", sf.Args[0])
	case opIsFalse:
		return fmt.Sprintf("(%s is false)", sf.Args[0])
	case opIn:
		return fmt.Sprintf("(%s in %s)", sf.Args[0], funcString("", sf.Args[1:]))
	case opBetween:
		return fmt.Sprintf("(%s between %s and %s)", sf.Args[0], sf.Args[1], sf.Args[2])
	case opLike:
		return fmt.Sprintf("(%s like %s escape %s)", sf.Args[0], sf.Args[1], sf.Args[2])
	}
	return funcString(sf.FuncName, sf.Args)
}

func funcString(name string, args []Expression) string {
	strs := make([]string, 0, len(args))
	for _, arg := range args {
		strs = append(strs, arg.String())
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(strs, ","))
}

func evalArgs(ctx EvalContext, args []Expression) ([]types.Datum, error) {
	datums := make([]types.Datum, 0, len(args))
	for _, arg := range args {
		d, err := arg.Eval(ctx)
		if err != nil {
			return nil, err
		}
		datums = append(datums, d)
	}
	return datums, nil
}

// EvalBool evaluates expr in a boolean context. NULL is reported as isNull
// and is neither true nor false.
func EvalBool(ctx EvalContext, expr Expression) (val bool, isNull bool, err error) {
	d, err := expr.Eval(ctx)
	if err != nil || d.IsNull() {
		return false, d.IsNull(), err
	}
	b, err := d.ToBool()
	handleTruncateError(ctx, err)
	return b == 1, false, nil
}
