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
	"math"
	"math/big"

	"github.com/pingcap/tidb-routine/pkg/types"
)

// precIncrement indicates the number of digits by which to increase the scale of the result of division operations
// performed with the / operator.
const precIncrement = 4

// maxDecimalScale is the maximum number of digits after the decimal point.
const maxDecimalScale = 30

type numClass int

const (
	classInt numClass = iota
	classDecimal
	classReal
)

// numericOperand converts a datum used in numeric context. Strings become
// doubles, truncation is reported as a warning.
func numericOperand(ctx EvalContext, d types.Datum) types.Datum {
	if d.Kind() != types.KindString {
		return d
	}
	f, err := d.ToFloat64()
	handleTruncateError(ctx, err)
	return types.NewFloat64Datum(f)
}

func classOf(d *types.Datum) numClass {
	switch d.Kind() {
	case types.KindInt64, types.KindUint64:
		return classInt
	case types.KindMysqlDecimal:
		return classDecimal
	}
	return classReal
}

func resultClass(a, b *types.Datum) numClass {
	return max(classOf(a), classOf(b))
}

func fracOf(d *types.Datum) int {
	if d.Kind() == types.KindMysqlDecimal {
		return d.Frac()
	}
	return 0
}

func toBigInt(d *types.Datum) *big.Int {
	if d.Kind() == types.KindUint64 {
		return new(big.Int).SetUint64(d.GetUint64())
	}
	return big.NewInt(d.GetInt64())
}

// fromBigInt converts an integer result back to a datum. The result is
// unsigned when an operand was unsigned and the value does not fit in a
// signed BIGINT.
func fromBigInt(sf *ScalarFunction, v *big.Int, unsigned bool) (types.Datum, error) {
	if v.IsInt64() {
		if unsigned && v.Sign() >= 0 {
			return types.NewUintDatum(v.Uint64()), nil
		}
		return types.NewIntDatum(v.Int64()), nil
	}
	if v.IsUint64() {
		return types.NewUintDatum(v.Uint64()), nil
	}
	tp := "BIGINT"
	if unsigned {
		tp = "BIGINT UNSIGNED"
	}
	return types.Datum{}, types.ErrOverflow.GenWithStackByArgs(tp, sf.String())
}

func checkFloat(sf *ScalarFunction, f float64) (types.Datum, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return types.Datum{}, types.ErrOverflow.GenWithStackByArgs("DOUBLE", sf.String())
	}
	return types.NewFloat64Datum(f), nil
}

// evalNumericArgs evaluates the two operands of an arithmetic operator. It
// returns isNull when either operand is NULL.
func evalNumericArgs(ctx EvalContext, sf *ScalarFunction) (a, b types.Datum, isNull bool, err error) {
	a, err = sf.Args[0].Eval(ctx)
	if err != nil || a.IsNull() {
		return a, b, true, err
	}
	b, err = sf.Args[1].Eval(ctx)
	if err != nil || b.IsNull() {
		return a, b, true, err
	}
	return numericOperand(ctx, a), numericOperand(ctx, b), false, nil
}

func isUnsigned(a, b *types.Datum) bool {
	return a.Kind() == types.KindUint64 || b.Kind() == types.KindUint64
}

func arithmeticFunc(op string) builtinFunc {
	return func(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
		a, b, isNull, err := evalNumericArgs(ctx, sf)
		if isNull || err != nil {
			return types.Datum{}, err
		}
		switch op {
		case opDiv:
			return divide(ctx, sf, a, b)
		case opIntDiv:
			return intDivide(ctx, sf, a, b)
		case opMod:
			return modulo(ctx, sf, a, b)
		}
		switch resultClass(&a, &b) {
		case classInt:
			x, y := toBigInt(&a), toBigInt(&b)
			switch op {
			case opPlus:
				x.Add(x, y)
			case opMinus:
				x.Sub(x, y)
			case opMul:
				x.Mul(x, y)
			}
			return fromBigInt(sf, x, isUnsigned(&a, &b))
		case classDecimal:
			x, _ := a.ToFloat64()
			y, _ := b.ToFloat64()
			switch op {
			case opPlus:
				return types.NewDecimalDatum(x+y, max(fracOf(&a), fracOf(&b))), nil
			case opMinus:
				return types.NewDecimalDatum(x-y, max(fracOf(&a), fracOf(&b))), nil
			default:
				return types.NewDecimalDatum(x*y, min(fracOf(&a)+fracOf(&b), maxDecimalScale)), nil
			}
		default:
			x, _ := a.ToFloat64()
			y, _ := b.ToFloat64()
			switch op {
			case opPlus:
				return checkFloat(sf, x+y)
			case opMinus:
				return checkFloat(sf, x-y)
			default:
				return checkFloat(sf, x*y)
			}
		}
	}
}

func divide(ctx EvalContext, sf *ScalarFunction, a, b types.Datum) (types.Datum, error) {
	x, _ := a.ToFloat64()
	y, _ := b.ToFloat64()
	if y == 0 {
		return types.Datum{}, handleDivisionByZeroError(ctx)
	}
	if resultClass(&a, &b) == classReal {
		return checkFloat(sf, x/y)
	}
	return types.NewDecimalDatum(x/y, min(fracOf(&a)+precIncrement, maxDecimalScale)), nil
}

func intDivide(ctx EvalContext, sf *ScalarFunction, a, b types.Datum) (types.Datum, error) {
	if resultClass(&a, &b) == classInt {
		y := toBigInt(&b)
		if y.Sign() == 0 {
			return types.Datum{}, handleDivisionByZeroError(ctx)
		}
		x := toBigInt(&a)
		return fromBigInt(sf, x.Quo(x, y), isUnsigned(&a, &b))
	}
	x, _ := a.ToFloat64()
	y, _ := b.ToFloat64()
	if y == 0 {
		return types.Datum{}, handleDivisionByZeroError(ctx)
	}
	q := math.Trunc(x / y)
	if q < math.MinInt64 || q >= math.MaxInt64 {
		return types.Datum{}, types.ErrOverflow.GenWithStackByArgs("BIGINT", sf.String())
	}
	return types.NewIntDatum(int64(q)), nil
}

func modulo(ctx EvalContext, sf *ScalarFunction, a, b types.Datum) (types.Datum, error) {
	switch resultClass(&a, &b) {
	case classInt:
		y := toBigInt(&b)
		if y.Sign() == 0 {
			return types.Datum{}, handleDivisionByZeroError(ctx)
		}
		x := toBigInt(&a)
		// the sign of the result follows the dividend
		return fromBigInt(sf, x.Rem(x, y), a.Kind() == types.KindUint64)
	case classDecimal:
		x, _ := a.ToFloat64()
		y, _ := b.ToFloat64()
		if y == 0 {
			return types.Datum{}, handleDivisionByZeroError(ctx)
		}
		return types.NewDecimalDatum(math.Mod(x, y), max(fracOf(&a), fracOf(&b))), nil
	default:
		x, _ := a.ToFloat64()
		y, _ := b.ToFloat64()
		if y == 0 {
			return types.Datum{}, handleDivisionByZeroError(ctx)
		}
		return checkFloat(sf, math.Mod(x, y))
	}
}

func unaryMinus(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	d, err := sf.Args[0].Eval(ctx)
	if err != nil || d.IsNull() {
		return types.Datum{}, err
	}
	d = numericOperand(ctx, d)
	switch d.Kind() {
	case types.KindInt64, types.KindUint64:
		v := toBigInt(&d)
		return fromBigInt(sf, v.Neg(v), false)
	case types.KindMysqlDecimal:
		return types.NewDecimalDatum(-d.GetFloat64(), d.Frac()), nil
	default:
		return types.NewFloat64Datum(-d.GetFloat64()), nil
	}
}
