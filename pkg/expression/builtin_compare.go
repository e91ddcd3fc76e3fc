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
	"github.com/pingcap/tidb-routine/pkg/types"
)

func boolDatum(b bool) types.Datum {
	if b {
		return types.NewIntDatum(1)
	}
	return types.NewIntDatum(0)
}

// compareDatums compares two non-NULL values, reporting truncation as a
// warning.
func compareDatums(ctx EvalContext, a, b *types.Datum) int {
	res, err := a.Compare(b)
	handleTruncateError(ctx, err)
	return res
}

func compareResult(op string, res int) bool {
	switch op {
	case opEQ:
		return res == 0
	case opNE:
		return res != 0
	case opLT:
		return res < 0
	case opLE:
		return res <= 0
	case opGT:
		return res > 0
	default:
		return res >= 0
	}
}

func compareFunc(op string) builtinFunc {
	return func(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
		a, err := sf.Args[0].Eval(ctx)
		if err != nil || a.IsNull() {
			return types.Datum{}, err
		}
		b, err := sf.Args[1].Eval(ctx)
		if err != nil || b.IsNull() {
			return types.Datum{}, err
		}
		return boolDatum(compareResult(op, compareDatums(ctx, &a, &b))), nil
	}
}

func nullEQ(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	args, err := evalArgs(ctx, sf.Args)
	if err != nil {
		return types.Datum{}, err
	}
	a, b := args[0], args[1]
	switch {
	case a.IsNull() && b.IsNull():
		return boolDatum(true), nil
	case a.IsNull() || b.IsNull():
		return boolDatum(false), nil
	}
	return boolDatum(compareDatums(ctx, &a, &b) == 0), nil
}

func logicAnd(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	a, aNull, err := EvalBool(ctx, sf.Args[0])
	if err != nil {
		return types.Datum{}, err
	}
	if !a && !aNull {
		return boolDatum(false), nil
	}
	b, bNull, err := EvalBool(ctx, sf.Args[1])
	if err != nil {
		return types.Datum{}, err
	}
	switch {
	case !b && !bNull:
		return boolDatum(false), nil
	case aNull || bNull:
		return types.Datum{}, nil
	}
	return boolDatum(true), nil
}

func logicOr(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	a, aNull, err := EvalBool(ctx, sf.Args[0])
	if err != nil {
		return types.Datum{}, err
	}
	if a {
		return boolDatum(true), nil
	}
	b, bNull, err := EvalBool(ctx, sf.Args[1])
	if err != nil {
		return types.Datum{}, err
	}
	switch {
	case b:
		return boolDatum(true), nil
	case aNull || bNull:
		return types.Datum{}, nil
	}
	return boolDatum(false), nil
}

func logicXor(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	a, aNull, err := EvalBool(ctx, sf.Args[0])
	if err != nil || aNull {
		return types.Datum{}, err
	}
	b, bNull, err := EvalBool(ctx, sf.Args[1])
	if err != nil || bNull {
		return types.Datum{}, err
	}
	return boolDatum(a != b), nil
}

func logicNot(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	a, aNull, err := EvalBool(ctx, sf.Args[0])
	if err != nil || aNull {
		return types.Datum{}, err
	}
	return boolDatum(!a), nil
}

func isNull(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	d, err := sf.Args[0].Eval(ctx)
	if err != nil {
		return types.Datum{}, err
	}
	return boolDatum(d.IsNull()), nil
}

// isTruth implements IS TRUE and IS FALSE. NULL is neither.
func isTruth(want bool) builtinFunc {
	return func(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
		v, vNull, err := EvalBool(ctx, sf.Args[0])
		if err != nil {
			return types.Datum{}, err
		}
		return boolDatum(!vNull && v == want), nil
	}
}

// in implements expr IN (list). The result is NULL when nothing matches and
// either side contains NULL.
func in(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	v, err := sf.Args[0].Eval(ctx)
	if err != nil || v.IsNull() {
		return types.Datum{}, err
	}
	sawNull := false
	for _, arg := range sf.Args[1:] {
		d, err := arg.Eval(ctx)
		if err != nil {
			return types.Datum{}, err
		}
		if d.IsNull() {
			sawNull = true
			continue
		}
		if compareDatums(ctx, &v, &d) == 0 {
			return boolDatum(true), nil
		}
	}
	if sawNull {
		return types.Datum{}, nil
	}
	return boolDatum(false), nil
}

// between implements expr BETWEEN lo AND hi as (expr >= lo AND expr <= hi).
func between(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	args, err := evalArgs(ctx, sf.Args)
	if err != nil {
		return types.Datum{}, err
	}
	v, lo, hi := args[0], args[1], args[2]
	if v.IsNull() {
		return types.Datum{}, nil
	}
	geLo, loNull := false, lo.IsNull()
	if !loNull {
		geLo = compareDatums(ctx, &v, &lo) >= 0
	}
	leHi, hiNull := false, hi.IsNull()
	if !hiNull {
		leHi = compareDatums(ctx, &v, &hi) <= 0
	}
	switch {
	case (!loNull && !geLo) || (!hiNull && !leHi):
		return boolDatum(false), nil
	case loNull || hiNull:
		return types.Datum{}, nil
	}
	return boolDatum(true), nil
}

// like implements expr LIKE pattern [ESCAPE c]. Matching is binary.
func like(ctx EvalContext, sf *ScalarFunction) (types.Datum, error) {
	args, err := evalArgs(ctx, sf.Args)
	if err != nil {
		return types.Datum{}, err
	}
	if args[0].IsNull() || args[1].IsNull() {
		return types.Datum{}, nil
	}
	escape := '\\'
	if len(args) == 3 && !args[2].IsNull() {
		e, _ := args[2].ToString()
		if r := []rune(e); len(r) > 0 {
			escape = r[0]
		}
	}
	s, _ := args[0].ToString()
	pattern, _ := args[1].ToString()
	return boolDatum(matchLike([]rune(s), []rune(pattern), escape)), nil
}

func matchLike(s, pattern []rune, escape rune) bool {
	for len(pattern) > 0 {
		switch p := pattern[0]; {
		case p == '%':
			pattern = pattern[1:]
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if matchLike(s[i:], pattern, escape) {
					return true
				}
			}
			return false
		case p == '_':
			if len(s) == 0 {
				return false
			}
		case p == escape && len(pattern) > 1:
			pattern = pattern[1:]
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
		default:
			if len(s) == 0 || s[0] != p {
				return false
			}
		}
		s, pattern = s[1:], pattern[1:]
	}
	return len(s) == 0
}
