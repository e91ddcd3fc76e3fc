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
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/parser"
	"github.com/pingcap/parser/ast"
	"github.com/pingcap/parser/mysql"
	_ "github.com/pingcap/parser/test_driver" // value expressions in type definitions
	ptypes "github.com/pingcap/parser/types"
	"github.com/pingcap/tidb-routine/pkg/util/syncutil"
)

// FieldType records field type information.
type FieldType = ptypes.FieldType

// UnspecifiedLength is unspecified length.
const UnspecifiedLength = ptypes.UnspecifiedLength

// NewFieldType returns a FieldType,
// with a type and other information about field type.
func NewFieldType(tp byte) *FieldType {
	return ptypes.NewFieldType(tp)
}

var fieldTypeParser = struct {
	syncutil.Mutex
	p *parser.Parser
}{p: parser.New()}

// ParseFieldType parses a column type definition such as "int unsigned",
// "varchar(20)" or "decimal(10,2)".
func ParseFieldType(def string) (*FieldType, error) {
	fieldTypeParser.Lock()
	stmt, err := fieldTypeParser.p.ParseOneStmt("CREATE TABLE t (c "+def+")", "", "")
	fieldTypeParser.Unlock()
	if err != nil {
		return nil, errors.Annotatef(err, "invalid type %q", def)
	}
	create, ok := stmt.(*ast.CreateTableStmt)
	if !ok || len(create.Cols) != 1 || create.Cols[0].Tp == nil {
		return nil, errors.Errorf("invalid type %q", def)
	}
	return create.Cols[0].Tp, nil
}

// IsIntegerType reports whether tp is one of the integer types.
func IsIntegerType(tp byte) bool {
	switch tp {
	case mysql.TypeTiny, mysql.TypeShort, mysql.TypeInt24, mysql.TypeLong, mysql.TypeLonglong, mysql.TypeYear, mysql.TypeBit:
		return true
	}
	return false
}

// IsStringType reports whether tp stores character or binary strings.
func IsStringType(tp byte) bool {
	switch tp {
	case mysql.TypeVarchar, mysql.TypeVarString, mysql.TypeString,
		mysql.TypeBlob, mysql.TypeTinyBlob, mysql.TypeMediumBlob, mysql.TypeLongBlob,
		mysql.TypeEnum, mysql.TypeSet, mysql.TypeJSON:
		return true
	}
	return false
}

// TypeString returns the lower-case SQL name of a field type, as printed in
// routine listings.
func TypeString(ft *FieldType) string {
	if ft == nil {
		return "null"
	}
	return strings.ToLower(ft.String())
}
