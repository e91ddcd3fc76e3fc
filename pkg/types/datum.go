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

package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind constants.
const (
	KindNull         byte = 0
	KindInt64        byte = 1
	KindUint64       byte = 2
	KindFloat64      byte = 4
	KindString       byte = 5
	KindMysqlDecimal byte = 6
)

// Datum is a data box holds different kind of data.
// It has better performance and is easier to use than `interface{}`.
type Datum struct {
	k    byte    // datum kind.
	frac int8    // digits after the decimal point, for KindMysqlDecimal.
	i    int64   // i can hold int64 uint64.
	f    float64 // f hold float64 and the value of KindMysqlDecimal.
	s    string  // s hold string value.
}

// NewDatum creates a new Datum from an interface{}.
func NewDatum(in any) (d Datum) {
	switch x := in.(type) {
	case nil:
	case Datum:
		d = x
	case bool:
		if x {
			d.SetInt64(1)
		} else {
			d.SetInt64(0)
		}
	case int:
		d.SetInt64(int64(x))
	case int32:
		d.SetInt64(int64(x))
	case int64:
		d.SetInt64(x)
	case uint64:
		d.SetUint64(x)
	case float32:
		d.SetFloat64(float64(x))
	case float64:
		d.SetFloat64(x)
	case string:
		d.SetString(x)
	case []byte:
		d.SetString(string(x))
	default:
		d.SetString(fmt.Sprintf("%v", x))
	}
	return d
}

// NewIntDatum creates a new Datum from an int64 value.
func NewIntDatum(i int64) (d Datum) {
	d.SetInt64(i)
	return d
}

// NewUintDatum creates a new Datum from an uint64 value.
func NewUintDatum(i uint64) (d Datum) {
	d.SetUint64(i)
	return d
}

// NewFloat64Datum creates a new Datum from a float64 value.
func NewFloat64Datum(f float64) (d Datum) {
	d.SetFloat64(f)
	return d
}

// NewDecimalDatum creates a new Datum holding a fixed-point value with frac
// digits after the decimal point.
func NewDecimalDatum(f float64, frac int) (d Datum) {
	d.SetDecimal(f, frac)
	return d
}

// NewStringDatum creates a new Datum from a string.
func NewStringDatum(s string) (d Datum) {
	d.SetString(s)
	return d
}

// Kind gets the kind of the datum.
func (d *Datum) Kind() byte {
	return d.k
}

// IsNull checks if datum is null.
func (d *Datum) IsNull() bool {
	return d.k == KindNull
}

// SetNull sets datum to nil.
func (d *Datum) SetNull() {
	*d = Datum{}
}

// GetInt64 gets int64 value.
func (d *Datum) GetInt64() int64 {
	return d.i
}

// SetInt64 sets int64 value.
func (d *Datum) SetInt64(i int64) {
	*d = Datum{k: KindInt64, i: i}
}

// GetUint64 gets uint64 value.
func (d *Datum) GetUint64() uint64 {
	return uint64(d.i)
}

// SetUint64 sets uint64 value.
func (d *Datum) SetUint64(i uint64) {
	*d = Datum{k: KindUint64, i: int64(i)}
}

// GetFloat64 gets float64 value.
func (d *Datum) GetFloat64() float64 {
	return d.f
}

// SetFloat64 sets float64 value.
func (d *Datum) SetFloat64(f float64) {
	*d = Datum{k: KindFloat64, f: f}
}

// SetDecimal sets a fixed-point value.
func (d *Datum) SetDecimal(f float64, frac int) {
	*d = Datum{k: KindMysqlDecimal, f: roundFrac(f, frac), frac: int8(frac)}
}

// Frac returns the number of digits after the decimal point of a decimal.
func (d *Datum) Frac() int {
	return int(d.frac)
}

// GetString gets string value.
func (d *Datum) GetString() string {
	return d.s
}

// SetString sets string value.
func (d *Datum) SetString(s string) {
	*d = Datum{k: KindString, s: s}
}

// GetValue gets the value of the datum of any kind.
func (d *Datum) GetValue() any {
	switch d.k {
	case KindInt64:
		return d.GetInt64()
	case KindUint64:
		return d.GetUint64()
	case KindFloat64, KindMysqlDecimal:
		return d.GetFloat64()
	case KindString:
		return d.GetString()
	default:
		return nil
	}
}

// IsNumeric reports whether the datum holds a number.
func (d *Datum) IsNumeric() bool {
	switch d.k {
	case KindInt64, KindUint64, KindFloat64, KindMysqlDecimal:
		return true
	}
	return false
}

// String returns a human-readable description of Datum. It is intended only for debugging.
func (d Datum) String() string {
	if d.k == KindNull {
		return "KindNull <nil>"
	}
	s, _ := d.ToString()
	return fmt.Sprintf("%s %s", kindName(d.k), s)
}

// ToString gets the string representation of the datum.
func (d *Datum) ToString() (string, error) {
	switch d.k {
	case KindNull:
		return "", nil
	case KindInt64:
		return strconv.FormatInt(d.i, 10), nil
	case KindUint64:
		return strconv.FormatUint(d.GetUint64(), 10), nil
	case KindFloat64:
		return formatFloat(d.f), nil
	case KindMysqlDecimal:
		return strconv.FormatFloat(d.f, 'f', int(d.frac), 64), nil
	case KindString:
		return d.s, nil
	}
	return "", ErrTruncatedWrongVal.GenWithStackByArgs("STRING", kindName(d.k))
}

// ToInt64 converts to a int64, rounding fractional values half away from zero.
// A string with trailing garbage converts its numeric prefix and returns a
// truncation error alongside the value.
func (d *Datum) ToInt64() (int64, error) {
	switch d.k {
	case KindNull:
		return 0, nil
	case KindInt64:
		return d.i, nil
	case KindUint64:
		if d.GetUint64() > math.MaxInt64 {
			return math.MaxInt64, ErrOverflow.GenWithStackByArgs("BIGINT", d.GetUint64())
		}
		return d.i, nil
	case KindFloat64, KindMysqlDecimal:
		return floatToInt(d.f)
	case KindString:
		f, err := StrToFloat(d.s)
		i, err1 := floatToInt(f)
		if err == nil {
			err = err1
		}
		return i, err
	}
	return 0, ErrTruncatedWrongVal.GenWithStackByArgs("INTEGER", kindName(d.k))
}

// ToFloat64 converts to a float64.
func (d *Datum) ToFloat64() (float64, error) {
	switch d.k {
	case KindNull:
		return 0, nil
	case KindInt64:
		return float64(d.i), nil
	case KindUint64:
		return float64(d.GetUint64()), nil
	case KindFloat64, KindMysqlDecimal:
		return d.f, nil
	case KindString:
		return StrToFloat(d.s)
	}
	return 0, ErrTruncatedWrongVal.GenWithStackByArgs("DOUBLE", kindName(d.k))
}

// ToBool converts to a bool.
// We will use 1 for true, and 0 for false.
func (d *Datum) ToBool() (int64, error) {
	switch d.k {
	case KindInt64, KindUint64:
		if d.i != 0 {
			return 1, nil
		}
		return 0, nil
	case KindFloat64, KindMysqlDecimal:
		if d.f != 0 {
			return 1, nil
		}
		return 0, nil
	default:
		f, err := d.ToFloat64()
		if f != 0 {
			return 1, err
		}
		return 0, err
	}
}

// Clone create a deep copy of the Datum.
func (d *Datum) Clone() *Datum {
	ret := *d
	return &ret
}

// EstimatedMemUsage returns the estimated bytes consumed by a Datum.
func (d *Datum) EstimatedMemUsage() int64 {
	return int64(EmptyDatumSize) + int64(len(d.s))
}

// EmptyDatumSize is the size of empty datum.
const EmptyDatumSize = 48

// StrToFloat converts a string to a float64 the way MySQL does in numeric
// context: the longest numeric prefix is used and a non-numeric remainder
// is reported as a truncation error next to the value.
func StrToFloat(str string) (float64, error) {
	s := strings.TrimSpace(str)
	if s == "" {
		return 0, ErrTruncatedWrongVal.GenWithStackByArgs("DOUBLE", str)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	prefix := numericPrefix(s)
	f, _ := strconv.ParseFloat(prefix, 64)
	return f, ErrTruncatedWrongVal.GenWithStackByArgs("DOUBLE", str)
}

// numericPrefix returns the longest prefix of s that parses as a number.
func numericPrefix(s string) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return "0"
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && s[k] >= '0' && s[k] <= '9' {
			k++
		}
		if k > j {
			i = k
		}
	}
	return strings.TrimSuffix(s[:i], ".")
}

func floatToInt(f float64) (int64, error) {
	r := math.Round(f)
	if r < math.MinInt64 || r >= math.MaxInt64 {
		if r < 0 {
			return math.MinInt64, ErrOverflow.GenWithStackByArgs("BIGINT", formatFloat(f))
		}
		return math.MaxInt64, ErrOverflow.GenWithStackByArgs("BIGINT", formatFloat(f))
	}
	return int64(r), nil
}

func roundFrac(f float64, frac int) float64 {
	if frac < 0 {
		return f
	}
	pow := math.Pow10(frac)
	return math.Round(f*pow) / pow
}

func formatFloat(f float64) string {
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e15 || abs < 1e-4) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func kindName(k byte) string {
	switch k {
	case KindNull:
		return "KindNull"
	case KindInt64:
		return "KindInt64"
	case KindUint64:
		return "KindUint64"
	case KindFloat64:
		return "KindFloat64"
	case KindString:
		return "KindString"
	case KindMysqlDecimal:
		return "KindMysqlDecimal"
	}
	return strconv.Itoa(int(k))
}
