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
	"cmp"
	"strings"
)

// Compare compares datum to another datum. Both datums must be non-NULL.
// Two strings compare as binary strings; any other pair compares
// numerically, converting strings with StrToFloat. A truncation error from
// that conversion is returned together with a valid result.
func (d *Datum) Compare(ad *Datum) (int, error) {
	switch {
	case d.k == KindString && ad.k == KindString:
		return strings.Compare(d.s, ad.s), nil
	case isInteger(d.k) && isInteger(ad.k):
		return compareIntegers(d, ad), nil
	}
	l, err := d.ToFloat64()
	r, err1 := ad.ToFloat64()
	if err == nil {
		err = err1
	}
	return cmp.Compare(l, r), err
}

func isInteger(k byte) bool {
	return k == KindInt64 || k == KindUint64
}

func compareIntegers(l, r *Datum) int {
	switch {
	case l.k == KindInt64 && r.k == KindInt64:
		return cmp.Compare(l.i, r.i)
	case l.k == KindUint64 && r.k == KindUint64:
		return cmp.Compare(l.GetUint64(), r.GetUint64())
	case l.k == KindInt64:
		if l.i < 0 {
			return -1
		}
		return cmp.Compare(uint64(l.i), r.GetUint64())
	default:
		if r.i < 0 {
			return 1
		}
		return cmp.Compare(l.GetUint64(), uint64(r.i))
	}
}
