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
	"math"
	"strings"
	"unicode/utf8"

	"github.com/pingcap/parser/mysql"
	"github.com/pingcap/tidb-routine/pkg/types"
)

func ifFunc(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	c, _, err := EvalBool(ctx, sf.Args[0])
	if err != nil {
		return types.Datum{}, err
	}
	if c {
		return sf.Args[1].Eval(ctx)
	}
	return sf.Args[2].Eval(ctx)
}

func ifNull(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	d, err := sf.Args[0].Eval(ctx)
	if err != nil || !d.IsNull() {
		return d, err
	}
	return sf.Args[1].Eval(ctx)
}

func nullIf(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	args, err := evalArgs(ctx, sf.Args)
	if err != nil {
		return types.Datum{}, err
	}
	if !args[0].IsNull() && !args[1].IsNull() && compareDatums(ctx, &args[0], &args[1]) == 0 {
		return types.Datum{}, nil
	}
	return args[0], nil
}

func coalesce(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	for _, arg := range sf.Args {
		d, err := arg.Eval(ctx)
		if err != nil || !d.IsNull() {
			return d, err
		}
	}
	return types.Datum{}, nil
}

// nameConst returns its value argument. Statement rewriting wraps inlined
// routine variables in NAME_CONST so the name survives in the binary log.
func nameConst(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	return sf.Args[1].Eval(ctx)
}

func concat(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	var sb strings.Builder
	for _, arg := range sf.Args {
		d, err := arg.Eval(ctx)
		if err != nil || d.IsNull() {
			return types.Datum{}, err
		}
		s, err := d.ToString()
		if err != nil {
			return types.Datum{}, err
		}
		sb.WriteString(s)
	}
	return types.NewStringDatum(sb.String()), nil
}

// evalString evaluates the argument at idx as a string.
func evalString(ctx EvalContext, sf *ScalarFunction, idx int) (s string, isNull bool, err error) {
	d, err := sf.Args[idx].Eval(ctx)
	if err != nil || d.IsNull() {
		return "", true, err
	}
	s, err = d.ToString()
	return s, false, err
}

// evalInt evaluates the argument at idx as an integer.
func evalInt(ctx EvalContext, sf *ScalarFunction, idx int) (v int64, isNull bool, err error) {
	d, err := sf.Args[idx].Eval(ctx)
	if err != nil || d.IsNull() {
		return 0, true, err
	}
	v, err = d.ToInt64()
	handleTruncateError(ctx, err)
	return v, false, nil
}

func length(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	s, isNull, err := evalString(ctx, sf, 0)
	if isNull || err != nil {
		return types.Datum{}, err
	}
	return types.NewIntDatum(int64(len(s))), nil
}

func charLength(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	s, isNull, err := evalString(ctx, sf, 0)
	if isNull || err != nil {
		return types.Datum{}, err
	}
	return types.NewIntDatum(int64(utf8.RuneCountInString(s))), nil
}

func changeCase(conv func(string) string) builtinFunc {
	return func(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
		s, isNull, err := evalString(ctx, sf, 0)
		if isNull || err != nil {
			return types.Datum{}, err
		}
		return types.NewStringDatum(conv(s)), nil
	}
}

// substring implements SUBSTRING(str, pos[, len]). Positions count characters
// from 1; a negative position counts from the end.
func substring(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	s, isNull, err := evalString(ctx, sf, 0)
	if isNull || err != nil {
		return types.Datum{}, err
	}
	pos, isNull, err := evalInt(ctx, sf, 1)
	if isNull || err != nil {
		return types.Datum{}, err
	}
	runes := []rune(s)
	n := int64(len(runes))
	switch {
	case pos < 0:
		pos += n
	case pos > 0:
		pos--
	default:
		return types.NewStringDatum(""), nil
	}
	if pos < 0 || pos >= n {
		return types.NewStringDatum(""), nil
	}
	end := n
	if len(sf.Args) == 3 {
		l, isNull, err := evalInt(ctx, sf, 2)
		if isNull || err != nil {
			return types.Datum{}, err
		}
		if l <= 0 {
			return types.NewStringDatum(""), nil
		}
		end = min(pos+l, n)
	}
	return types.NewStringDatum(string(runes[pos:end])), nil
}

func abs(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	d, err := sf.Args[0].Eval(ctx)
	if err != nil || d.IsNull() {
		return types.Datum{}, err
	}
	d = numericOperand(ctx, d)
	switch d.Kind() {
	case types.KindInt64:
		v := d.GetInt64()
		if v == math.MinInt64 {
			return types.Datum{}, types.ErrOverflow.GenWithStackByArgs("BIGINT", sf.String())
		}
		if v < 0 {
			v = -v
		}
		return types.NewIntDatum(v), nil
	case types.KindUint64:
		return d, nil
	case types.KindMysqlDecimal:
		return types.NewDecimalDatum(math.Abs(d.GetFloat64()), d.Frac()), nil
	default:
		return types.NewFloat64Datum(math.Abs(d.GetFloat64())), nil
	}
}

// round implements ROUND(x[, d]). Halves round away from zero.
func round(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	d, err := sf.Args[0].Eval(ctx)
	if err != nil || d.IsNull() {
		return types.Datum{}, err
	}
	d = numericOperand(ctx, d)
	var frac int64
	if len(sf.Args) == 2 {
		var isNull bool
		frac, isNull, err = evalInt(ctx, sf, 1)
		if isNull || err != nil {
			return types.Datum{}, err
		}
		frac = max(min(frac, maxDecimalScale), -maxDecimalScale)
	}
	f, _ := d.ToFloat64()
	var rounded float64
	if frac >= 0 {
		pow := math.Pow10(int(frac))
		rounded = math.Round(f*pow) / pow
	} else {
		pow := math.Pow10(int(-frac))
		rounded = math.Round(f/pow) * pow
	}
	switch d.Kind() {
	case types.KindInt64, types.KindUint64:
		if frac >= 0 {
			return d, nil
		}
		if rounded < math.MinInt64 || rounded >= math.MaxInt64 {
			return types.Datum{}, types.ErrOverflow.GenWithStackByArgs("BIGINT", sf.String())
		}
		return types.NewIntDatum(int64(rounded)), nil
	case types.KindMysqlDecimal:
		return types.NewDecimalDatum(rounded, int(max(frac, 0))), nil
	default:
		return types.NewFloat64Datum(rounded), nil
	}
}

func floorCeil(ceil bool) builtinFunc {
	return func(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
		d, err := sf.Args[0].Eval(ctx)
		if err != nil || d.IsNull() {
			return types.Datum{}, err
		}
		d = numericOperand(ctx, d)
		switch d.Kind() {
		case types.KindInt64, types.KindUint64:
			return d, nil
		}
		f := math.Floor(d.GetFloat64())
		if ceil {
			f = math.Ceil(d.GetFloat64())
		}
		if d.Kind() == types.KindMysqlDecimal && f >= math.MinInt64 && f < math.MaxInt64 {
			return types.NewIntDatum(int64(f)), nil
		}
		return types.NewFloat64Datum(f), nil
	}
}

// CaseWhen is a searched CASE expression, or a simple one when Value is set.
type CaseWhen struct {
	Value Expression
	Whens []Expression
	Thens []Expression
	Else  Expression
}

// Eval implements Expression interface.
func (c *CaseWhen) Eval(ctx EvalContext) (types.Datum, error) {
	var v types.Datum
	if c.Value != nil {
		var err error
		if v, err = c.Value.Eval(ctx); err != nil {
			return types.Datum{}, err
		}
	}
	for i, when := range c.Whens {
		w, err := when.Eval(ctx)
		if err != nil {
			return types.Datum{}, err
		}
		var matched bool
		if c.Value != nil {
			matched = !v.IsNull() && !w.IsNull() && compareDatums(ctx, &v, &w) == 0
		} else if !w.IsNull() {
			b, err := w.ToBool()
			handleTruncateError(ctx, err)
			matched = b == 1
		}
		if matched {
			return c.Thens[i].Eval(ctx)
		}
	}
	if c.Else != nil {
		return c.Else.Eval(ctx)
	}
	return types.Datum{}, nil
}

// String implements fmt.Stringer interface.
func (c *CaseWhen) String() string {
	var sb strings.Builder
	sb.WriteString("case")
	if c.Value != nil {
		fmt.Fprintf(&sb, " %s", c.Value)
	}
	for i := range c.Whens {
		fmt.Fprintf(&sb, " when %s then %s", c.Whens[i], c.Thens[i])
	}
	if c.Else != nil {
		fmt.Fprintf(&sb, " else %s", c.Else)
	}
	sb.WriteString(" end")
	return sb.String()
}

// Cast converts its argument to a target type. Unlike assignment to a typed
// variable, conversion failures are warnings.
type Cast struct {
	Expr Expression
	Tp   *types.FieldType
}

// Eval implements Expression interface.
func (c *Cast) Eval(ctx EvalContext) (types.Datum, error) {
	d, err := c.Expr.Eval(ctx)
	if err != nil || d.IsNull() {
		return types.Datum{}, err
	}
	switch c.Tp.Tp {
	case mysql.TypeLonglong:
		if mysql.HasUnsignedFlag(c.Tp.Flag) {
			if d.Kind() == types.KindUint64 {
				return d, nil
			}
			v, err := d.ToInt64()
			handleTruncateError(ctx, err)
			return types.NewUintDatum(uint64(v)), nil
		}
		if d.Kind() == types.KindUint64 {
			return types.NewIntDatum(int64(d.GetUint64())), nil
		}
		v, err := d.ToInt64()
		handleTruncateError(ctx, err)
		return types.NewIntDatum(v), nil
	case mysql.TypeDouble, mysql.TypeFloat:
		f, err := d.ToFloat64()
		handleTruncateError(ctx, err)
		return types.NewFloat64Datum(f), nil
	case mysql.TypeNewDecimal:
		f, err := d.ToFloat64()
		handleTruncateError(ctx, err)
		frac := c.Tp.Decimal
		if frac == types.UnspecifiedLength {
			frac = 0
		}
		return types.NewDecimalDatum(f, frac), nil
	default:
		s, err := d.ToString()
		if err != nil {
			return types.Datum{}, err
		}
		if c.Tp.Flen != types.UnspecifiedLength && utf8.RuneCountInString(s) > c.Tp.Flen {
			ctx.AppendWarning(types.ErrTruncatedWrongVal.GenWithStackByArgs(strings.ToUpper(types.TypeString(c.Tp)), s))
			s = string([]rune(s)[:c.Tp.Flen])
		}
		return types.NewStringDatum(s), nil
	}
}

// String implements fmt.Stringer interface.
func (c *Cast) String() string {
	return fmt.Sprintf("cast(%s as %s)", c.Expr, types.TypeString(c.Tp))
}
