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
	"strings"
	"testing"

	"github.com/pingcap/errors"
	"github.com/pingcap/tidb-routine/pkg/types"
	"github.com/stretchr/testify/require"
)

type mockEvalContext struct {
	vars        []types.Datum
	userVars    map[string]types.Datum
	newRow      map[string]types.Datum
	warnings    []error
	divZeroErr  bool
	subqueries  []string
	calledFuncs []string
}

func newMockEvalContext(vars ...types.Datum) *mockEvalContext {
	return &mockEvalContext{vars: vars, userVars: map[string]types.Datum{}, newRow: map[string]types.Datum{}}
}

func (m *mockEvalContext) GetVariable(idx int) types.Datum { return m.vars[idx] }

func (m *mockEvalContext) GetCaseExpr(idx int) types.Datum { return m.vars[idx] }

func (m *mockEvalContext) GetUserVar(name string) (types.Datum, bool) {
	d, ok := m.userVars[name]
	return d, ok
}

func (m *mockEvalContext) GetTriggerField(old bool, name string) (types.Datum, error) {
	if old {
		return types.Datum{}, errors.New("no OLD row")
	}
	return m.newRow[name], nil
}

func (m *mockEvalContext) AppendWarning(err error) { m.warnings = append(m.warnings, err) }

func (m *mockEvalContext) DivisionByZeroIsError() bool { return m.divZeroErr }

func (m *mockEvalContext) EvalSubquery(text string) (types.Datum, error) {
	m.subqueries = append(m.subqueries, text)
	return types.NewIntDatum(42), nil
}

func (m *mockEvalContext) CallFunction(name string, args []types.Datum) (types.Datum, error) {
	m.calledFuncs = append(m.calledFuncs, name)
	return types.NewIntDatum(int64(len(args))), nil
}

type mapResolver map[string]int

func (r mapResolver) LookupVariable(name string) (int, bool) {
	idx, ok := r[name]
	return idx, ok
}

func evalText(t *testing.T, ctx EvalContext, text string, r Resolver) types.Datum {
	expr, err := NewParser().ParseExpr(text, r)
	require.NoError(t, err, text)
	d, err := expr.Eval(ctx)
	require.NoError(t, err, text)
	return d
}

func TestArithmetic(t *testing.T) {
	ctx := newMockEvalContext()
	tests := []struct {
		expr   string
		expect string
		kind   byte
	}{
		{"1 + 2", "3", types.KindInt64},
		{"7 - 10", "-3", types.KindInt64},
		{"6 * 7", "42", types.KindInt64},
		{"7 / 2", "3.5000", types.KindMysqlDecimal},
		{"7 DIV 2", "3", types.KindInt64},
		{"-7 % 3", "-1", types.KindInt64},
		{"1.5 + 1", "2.5", types.KindMysqlDecimal},
		{"1.25 * 2.5", "3.125", types.KindMysqlDecimal},
		{"1e1 + 1", "11", types.KindFloat64},
		{"'3' + 4", "7", types.KindFloat64},
		{"-(5)", "-5", types.KindInt64},
		{"18446744073709551615 - 1", "18446744073709551614", types.KindUint64},
	}
	for _, tt := range tests {
		d := evalText(t, ctx, tt.expr, nil)
		s, err := d.ToString()
		require.NoError(t, err)
		require.Equal(t, tt.expect, s, tt.expr)
		require.Equal(t, tt.kind, d.Kind(), tt.expr)
	}
	require.Empty(t, ctx.warnings)
}

func TestArithmeticOverflow(t *testing.T) {
	ctx := newMockEvalContext()
	expr, err := NewParser().ParseExpr("9223372036854775807 + 1", nil)
	require.NoError(t, err)
	_, err = expr.Eval(ctx)
	require.True(t, types.ErrOverflow.Equal(err))
	require.Contains(t, err.Error(), "BIGINT value is out of range in '(9223372036854775807 + 1)'")
}

func TestDivisionByZero(t *testing.T) {
	ctx := newMockEvalContext()
	for _, text := range []string{"1 / 0", "1 DIV 0", "1 % 0", "1.5 / 0"} {
		d := evalText(t, ctx, text, nil)
		require.True(t, d.IsNull(), text)
	}
	require.Len(t, ctx.warnings, 4)
	require.True(t, ErrDivisionByZero.Equal(ctx.warnings[0]))

	ctx = newMockEvalContext()
	ctx.divZeroErr = true
	expr, err := NewParser().ParseExpr("10 / 0", nil)
	require.NoError(t, err)
	_, err = expr.Eval(ctx)
	require.True(t, ErrDivisionByZero.Equal(err))
	require.Empty(t, ctx.warnings)
}

func TestTruncatedStringOperand(t *testing.T) {
	ctx := newMockEvalContext()
	d := evalText(t, ctx, "'12abc' + 1", nil)
	require.Equal(t, float64(13), d.GetFloat64())
	require.Len(t, ctx.warnings, 1)
	require.True(t, types.ErrTruncatedWrongVal.Equal(ctx.warnings[0]))
}

func TestCompareAndLogic(t *testing.T) {
	ctx := newMockEvalContext()
	tests := []struct {
		expr   string
		isNull bool
		val    int64
	}{
		{"1 < 2", false, 1},
		{"2 <= 1", false, 0},
		{"'a' = 'a'", false, 1},
		{"'a' <> 'A'", false, 1},
		{"1 = NULL", true, 0},
		{"NULL <=> NULL", false, 1},
		{"1 <=> NULL", false, 0},
		{"NULL AND 0", false, 0},
		{"NULL AND 1", true, 0},
		{"NULL OR 1", false, 1},
		{"NULL OR 0", true, 0},
		{"1 XOR 1", false, 0},
		{"NOT 0", false, 1},
		{"NOT NULL", true, 0},
		{"NULL IS NULL", false, 1},
		{"1 IS NOT NULL", false, 1},
		{"NULL IS TRUE", false, 0},
		{"NULL IS NOT FALSE", false, 1},
		{"2 IN (1, 2, 3)", false, 1},
		{"5 IN (1, NULL)", true, 0},
		{"5 NOT IN (1, 2)", false, 1},
		{"5 BETWEEN 1 AND 10", false, 1},
		{"5 NOT BETWEEN 1 AND 4", false, 1},
		{"5 BETWEEN NULL AND 4", false, 0},
		{"'abc' LIKE 'a%'", false, 1},
		{"'abc' LIKE 'a_d'", false, 0},
		{"'a%c' LIKE 'a|%c' ESCAPE '|'", false, 1},
		{"'abc' LIKE 'a|%c' ESCAPE '|'", false, 0},
		{"'abc' NOT LIKE '%b%'", false, 0},
	}
	for _, tt := range tests {
		d := evalText(t, ctx, tt.expr, nil)
		require.Equal(t, tt.isNull, d.IsNull(), tt.expr)
		if !tt.isNull {
			require.Equal(t, tt.val, d.GetInt64(), tt.expr)
		}
	}
}

func TestBuiltinFunctions(t *testing.T) {
	ctx := newMockEvalContext()
	tests := []struct {
		expr   string
		expect string
	}{
		{"concat('a', 1, 'b')", "a1b"},
		{"ifnull(NULL, 'x')", "x"},
		{"coalesce(NULL, NULL, 3)", "3"},
		{"if(1 > 2, 'yes', 'no')", "no"},
		{"abs(-4)", "4"},
		{"length('héllo')", "6"},
		{"char_length('héllo')", "5"},
		{"upper('abc')", "ABC"},
		{"lcase('ABC')", "abc"},
		{"substring('routine', 2, 3)", "out"},
		{"substring('routine', -3)", "ine"},
		{"round(2.567, 2)", "2.57"},
		{"round(1250, -2)", "1300"},
		{"floor(2.7)", "2"},
		{"ceil(2.1)", "3"},
		{"mod(10, 3)", "1"},
		{"name_const('v', 14)", "14"},
		{"cast('12' as signed)", "12"},
		{"cast(3 as char)", "3"},
		{"case 2 when 1 then 'one' when 2 then 'two' end", "two"},
		{"case when 1 > 2 then 'a' else 'b' end", "b"},
	}
	for _, tt := range tests {
		d := evalText(t, ctx, tt.expr, nil)
		s, err := d.ToString()
		require.NoError(t, err)
		require.Equal(t, tt.expect, s, tt.expr)
	}
	nullifRes := evalText(t, ctx, "nullif(1, 1)", nil)
	require.True(t, nullifRes.IsNull())
	concatRes := evalText(t, ctx, "concat('a', NULL)", nil)
	require.True(t, concatRes.IsNull())
	caseRes := evalText(t, ctx, "case 3 when 1 then 'one' end", nil)
	require.True(t, caseRes.IsNull())
}

func TestIncorrectParameterCount(t *testing.T) {
	_, err := NewParser().ParseExpr("ifnull(1)", nil)
	require.True(t, ErrIncorrectParameterCount.Equal(err))
}

func TestResolveIdentifiers(t *testing.T) {
	ctx := newMockEvalContext(types.NewIntDatum(10), types.NewStringDatum("x"))
	ctx.userVars["total"] = types.NewIntDatum(5)
	ctx.newRow["price"] = types.NewIntDatum(3)
	r := mapResolver{"v_i": 0, "v_s": 1}

	expr, err := NewParser().ParseExpr("v_i + @total * NEW.price", r)
	require.NoError(t, err)
	require.Equal(t, "(v_i@0 + (@total * NEW.price))", expr.String())
	d, err := expr.Eval(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(25), d.GetInt64())

	expr, err = NewParser().ParseExpr("my_func(v_s, 1)", r)
	require.NoError(t, err)
	require.Equal(t, "`my_func`(v_s@1,1)", expr.String())
	d, err = expr.Eval(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), d.GetInt64())
	require.Equal(t, []string{"my_func"}, ctx.calledFuncs)

	_, err = NewParser().ParseExpr("missing + 1", r)
	require.True(t, ErrBadField.Equal(err))
	require.Contains(t, err.Error(), "Unknown column 'missing' in 'field list'")

	_, err = NewParser().ParseExpr("OLD.price", r)
	require.NoError(t, err)

	d = evalText(t, ctx, "@undefined", r)
	require.True(t, d.IsNull())
}

func TestSubquery(t *testing.T) {
	ctx := newMockEvalContext(types.NewIntDatum(1))
	expr, err := NewParser().ParseExpr("(SELECT COUNT(*) FROM t1) + 1", mapResolver{"a": 0})
	require.NoError(t, err)
	d, err := expr.Eval(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(43), d.GetInt64())
	require.Len(t, ctx.subqueries, 1)
	require.True(t, strings.HasPrefix(ctx.subqueries[0], "SELECT COUNT(1) FROM `t1`") ||
		strings.HasPrefix(ctx.subqueries[0], "SELECT COUNT(*) FROM `t1`"), ctx.subqueries[0])

	expr, err = NewParser().ParseExpr("EXISTS (SELECT 1 FROM t1)", nil)
	require.NoError(t, err)
	_, err = expr.Eval(ctx)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ctx.subqueries[1], "SELECT EXISTS ("), ctx.subqueries[1])
}

func TestNotAnExpression(t *testing.T) {
	p := NewParser()
	for _, text := range []string{"1 FROM t", "1, 2", "*", "1 +"} {
		_, err := p.ParseExpr(text, nil)
		require.Error(t, err, text)
	}
	_, err := p.ParseExpr("ROW(1, 2)", nil)
	require.True(t, ErrOperandColumns.Equal(err))
}

func TestExpressionString(t *testing.T) {
	r := mapResolver{"v_i": 0}
	tests := []struct {
		expr   string
		expect string
	}{
		{"v_i < 10", "(v_i@0 < 10)"},
		{"NOT v_i", "(not(v_i@0))"},
		{"v_i IS NULL", "(v_i@0 is null)"},
		{"v_i IN (1, 2)", "(v_i@0 in (1,2))"},
		{"v_i BETWEEN 1 AND 2", "(v_i@0 between 1 and 2)"},
		{"'it''s'", "'it\\'s'"},
		{"-v_i", "-(v_i@0)"},
		{"concat(v_i, 'a')", "concat(v_i@0,'a')"},
	}
	for _, tt := range tests {
		expr, err := NewParser().ParseExpr(tt.expr, r)
		require.NoError(t, err)
		require.Equal(t, tt.expect, expr.String(), tt.expr)
	}
}
