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
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pingcap/errors"
	"github.com/pingcap/parser/mysql"
)

// ConvertTo converts a datum to the target field type. colName names the
// slot being written and only appears in error messages.
func (d *Datum) ConvertTo(target *FieldType, colName string) (Datum, error) {
	if d.k == KindNull || target == nil {
		return *d, nil
	}
	switch target.Tp {
	case mysql.TypeTiny, mysql.TypeShort, mysql.TypeInt24, mysql.TypeLong, mysql.TypeLonglong, mysql.TypeYear:
		if mysql.HasUnsignedFlag(target.Flag) {
			return d.convertToUint(target, colName)
		}
		return d.convertToInt(target, colName)
	case mysql.TypeFloat, mysql.TypeDouble:
		return d.convertToFloat(target, colName)
	case mysql.TypeNewDecimal:
		return d.convertToDecimal(target, colName)
	case mysql.TypeNull:
		return Datum{}, nil
	default:
		return d.convertToString(target, colName)
	}
}

func (d *Datum) strictFloat(kind, colName string) (float64, error) {
	if d.k != KindString {
		return d.ToFloat64()
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(d.s), 64)
	if err != nil {
		return 0, ErrWrongValueForField.GenWithStackByArgs(kind, d.s, colName, 1)
	}
	return f, nil
}

func (d *Datum) convertToInt(target *FieldType, colName string) (Datum, error) {
	var (
		i   int64
		err error
	)
	switch d.k {
	case KindInt64:
		i = d.i
	case KindUint64:
		if d.GetUint64() > math.MaxInt64 {
			return Datum{}, ErrWarnDataOutOfRange.GenWithStackByArgs(colName, 1)
		}
		i = d.i
	case KindString:
		if i, err = strconv.ParseInt(strings.TrimSpace(d.s), 10, 64); err != nil {
			var f float64
			if f, err = d.strictFloat("integer", colName); err != nil {
				return Datum{}, errors.Trace(err)
			}
			if i, err = floatToInt(f); err != nil {
				return Datum{}, ErrWarnDataOutOfRange.GenWithStackByArgs(colName, 1)
			}
		}
	default:
		if i, err = floatToInt(d.f); err != nil {
			return Datum{}, ErrWarnDataOutOfRange.GenWithStackByArgs(colName, 1)
		}
	}
	lower, upper := signedBounds(target.Tp)
	if i < lower || i > upper {
		return Datum{}, ErrWarnDataOutOfRange.GenWithStackByArgs(colName, 1)
	}
	return NewIntDatum(i), nil
}

func (d *Datum) convertToUint(target *FieldType, colName string) (Datum, error) {
	var u uint64
	switch d.k {
	case KindInt64:
		if d.i < 0 {
			return Datum{}, ErrWarnDataOutOfRange.GenWithStackByArgs(colName, 1)
		}
		u = uint64(d.i)
	case KindUint64:
		u = d.GetUint64()
	default:
		var f float64
		if d.k == KindString {
			parsed, err := strconv.ParseUint(strings.TrimSpace(d.s), 10, 64)
			if err == nil {
				u = parsed
				break
			}
			if f, err = d.strictFloat("integer", colName); err != nil {
				return Datum{}, errors.Trace(err)
			}
		} else {
			f = d.f
		}
		r := math.Round(f)
		if r < 0 || r >= math.MaxUint64 {
			return Datum{}, ErrWarnDataOutOfRange.GenWithStackByArgs(colName, 1)
		}
		u = uint64(r)
	}
	if u > unsignedUpperBound(target.Tp) {
		return Datum{}, ErrWarnDataOutOfRange.GenWithStackByArgs(colName, 1)
	}
	return NewUintDatum(u), nil
}

func (d *Datum) convertToFloat(target *FieldType, colName string) (Datum, error) {
	f, err := d.strictFloat("double", colName)
	if err != nil {
		return Datum{}, errors.Trace(err)
	}
	if target.Tp == mysql.TypeFloat {
		if math.Abs(f) > math.MaxFloat32 {
			return Datum{}, ErrWarnDataOutOfRange.GenWithStackByArgs(colName, 1)
		}
		f = float64(float32(f))
	}
	if target.Flen != UnspecifiedLength && target.Decimal != UnspecifiedLength {
		f = roundFrac(f, target.Decimal)
	}
	if mysql.HasUnsignedFlag(target.Flag) && f < 0 {
		return Datum{}, ErrWarnDataOutOfRange.GenWithStackByArgs(colName, 1)
	}
	return NewFloat64Datum(f), nil
}

func (d *Datum) convertToDecimal(target *FieldType, colName string) (Datum, error) {
	f, err := d.strictFloat("decimal", colName)
	if err != nil {
		return Datum{}, errors.Trace(err)
	}
	flen, frac := target.Flen, target.Decimal
	// DECIMAL is DECIMAL(10,0).
	if flen == UnspecifiedLength {
		flen = 10
	}
	if frac == UnspecifiedLength {
		frac = 0
	}
	f = roundFrac(f, frac)
	if math.Abs(f) >= math.Pow10(flen-frac) {
		return Datum{}, ErrWarnDataOutOfRange.GenWithStackByArgs(colName, 1)
	}
	if mysql.HasUnsignedFlag(target.Flag) && f < 0 {
		return Datum{}, ErrWarnDataOutOfRange.GenWithStackByArgs(colName, 1)
	}
	return NewDecimalDatum(f, frac), nil
}

func (d *Datum) convertToString(target *FieldType, colName string) (Datum, error) {
	s, err := d.ToString()
	if err != nil {
		return Datum{}, errors.Trace(err)
	}
	if target.Flen > 0 && utf8.RuneCountInString(s) > target.Flen {
		return Datum{}, ErrDataTooLong.GenWithStackByArgs(colName, 1)
	}
	return NewStringDatum(s), nil
}

func signedBounds(tp byte) (int64, int64) {
	switch tp {
	case mysql.TypeTiny:
		return math.MinInt8, math.MaxInt8
	case mysql.TypeShort:
		return math.MinInt16, math.MaxInt16
	case mysql.TypeInt24:
		return -1 << 23, 1<<23 - 1
	case mysql.TypeLong:
		return math.MinInt32, math.MaxInt32
	case mysql.TypeYear:
		return 0, 2155
	}
	return math.MinInt64, math.MaxInt64
}

func unsignedUpperBound(tp byte) uint64 {
	switch tp {
	case mysql.TypeTiny:
		return math.MaxUint8
	case mysql.TypeShort:
		return math.MaxUint16
	case mysql.TypeInt24:
		return 1<<24 - 1
	case mysql.TypeLong:
		return math.MaxUint32
	case mysql.TypeYear:
		return 2155
	}
	return math.MaxUint64
}
