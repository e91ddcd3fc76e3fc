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

	"github.com/pingcap/tidb-routine/pkg/types"
)

// builtinFunc evaluates a scalar function. It receives the whole function so
// that control functions can evaluate their arguments lazily.
type builtinFunc func(ctx EvalContext, sf *ScalarFunction) (types.Datum, error)

// Operator names.
const (
	opPlus       = "plus"
	opMinus      = "minus"
	opMul        = "mul"
	opDiv        = "div"
	opIntDiv     = "intdiv"
	opMod        = "mod"
	opEQ         = "eq"
	opNE         = "ne"
	opLT         = "lt"
	opLE         = "le"
	opGT         = "gt"
	opGE         = "ge"
	opNullEQ     = "nulleq"
	opAnd        = "and"
	opOr         = "or"
	opXor        = "xor"
	opNot        = "not"
	opUnaryMinus = "unaryminus"
	opIsNull     = "isnull"
	opIsTrue     = "istrue"
	opIsFalse    = "isfalse"
	opIn         = "in"
	opBetween    = "between"
	opLike       = "like"
)

var infixSymbols = map[string]string{
	opPlus:   "+",
	opMinus:  "-",
	opMul:    "*",
	opDiv:    "/",
	opIntDiv: "DIV",
	opMod:    "%",
	opEQ:     "=",
	opNE:     "<>",
	opLT:     "<",
	opLE:     "<=",
	opGT:     ">",
	opGE:     ">=",
	opNullEQ: "<=>",
	opAnd:    "and",
	opOr:     "or",
	opXor:    "xor",
	opLike:   "like",
}

type functionClass struct {
	minArgs int
	// maxArgs is -1 for variadic functions.
	maxArgs int
	fn      builtinFunc
}

var funcs map[string]functionClass

func init() {
	funcs = map[string]functionClass{
		opPlus:       {2, 2, arithmeticFunc(opPlus)},
		opMinus:      {2, 2, arithmeticFunc(opMinus)},
		opMul:        {2, 2, arithmeticFunc(opMul)},
		opDiv:        {2, 2, arithmeticFunc(opDiv)},
		opIntDiv:     {2, 2, arithmeticFunc(opIntDiv)},
		opMod:        {2, 2, arithmeticFunc(opMod)},
		opUnaryMinus: {1, 1, unaryMinus},
		opEQ:         {2, 2, compareFunc(opEQ)},
		opNE:         {2, 2, compareFunc(opNE)},
		opLT:         {2, 2, compareFunc(opLT)},
		opLE:         {2, 2, compareFunc(opLE)},
		opGT:         {2, 2, compareFunc(opGT)},
		opGE:         {2, 2, compareFunc(opGE)},
		opNullEQ:     {2, 2, nullEQ},
		opAnd:        {2, 2, logicAnd},
		opOr:         {2, 2, logicOr},
		opXor:        {2, 2, logicXor},
		opNot:        {1, 1, logicNot},
		opIsNull:     {1, 1, isNull},
		opIsTrue:     {1, 1, isTruth(true)},
		opIsFalse:    {1, 1, isTruth(false)},
		opIn:         {2, -1, in},
		opBetween:    {3, 3, between},
		opLike:       {2, 3, like},

		"if":          {3, 3, ifFunc},
		"ifnull":      {2, 2, ifNull},
		"nullif":      {2, 2, nullIf},
		"coalesce":    {1, -1, coalesce},
		"name_const":  {2, 2, nameConst},
		"concat":      {1, -1, concat},
		"length":      {1, 1, length},
		"char_length": {1, 1, charLength},
		"upper":       {1, 1, changeCase(strings.ToUpper)},
		"ucase":       {1, 1, changeCase(strings.ToUpper)},
		"lower":       {1, 1, changeCase(strings.ToLower)},
		"lcase":       {1, 1, changeCase(strings.ToLower)},
		"substring":   {2, 3, substring},
		"substr":      {2, 3, substring},
		"abs":         {1, 1, abs},
		"round":       {1, 2, round},
		"floor":       {1, 1, floorCeil(false)},
		"ceil":        {1, 1, floorCeil(true)},
		"ceiling":     {1, 1, floorCeil(true)},
	}
	funcs["mod"] = funcs[opMod]
}

// IsBuiltin reports whether name is a builtin function.
func IsBuiltin(name string) bool {
	_, ok := funcs[strings.ToLower(name)]
	return ok
}

// NewFunction creates a scalar function with the given arguments.
func NewFunction(name string, args ...Expression) (*ScalarFunction, error) {
	name = strings.ToLower(name)
	class, ok := funcs[name]
	if !ok {
		return nil, ErrFunctionNotExists.GenWithStackByArgs("FUNCTION", name)
	}
	if len(args) < class.minArgs || (class.maxArgs >= 0 && len(args) > class.maxArgs) {
		return nil, ErrIncorrectParameterCount.GenWithStackByArgs(name)
	}
	return &ScalarFunction{FuncName: name, Args: args, fn: class.fn}, nil
}

// NewFunctionInternal is NewFunction for callers that know the arguments fit.
func NewFunctionInternal(name string, args ...Expression) *ScalarFunction {
	sf, err := NewFunction(name, args...)
	if err != nil {
		panic(err)
	}
	return sf
}
