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

package sqlexec

import (
	"context"
	"fmt"
	"io"

	"github.com/pingcap/parser/ast"
	"github.com/pingcap/tidb-routine/pkg/sp"
	"github.com/pingcap/tidb-routine/pkg/types"
)

// DryRunExecutor writes statements to w instead of running them. Queries
// return empty result sets, so the first FETCH of a cursor raises NOT FOUND.
type DryRunExecutor struct {
	w io.Writer
}

// NewDryRunExecutor creates a DryRunExecutor writing to w.
func NewDryRunExecutor(w io.Writer) *DryRunExecutor {
	return &DryRunExecutor{w: w}
}

// ExecStmt implements sp.StmtExecutor interface.
func (e *DryRunExecutor) ExecStmt(_ context.Context, _ *sp.Session, stmt *sp.Stmt) error {
	_, err := fmt.Fprintf(e.w, "%s;\n", stmt.LogText)
	return err
}

// Query implements sp.StmtExecutor interface.
func (e *DryRunExecutor) Query(_ context.Context, _ *sp.Session, stmt *sp.Stmt) (sp.RecordSet, error) {
	if _, err := fmt.Fprintf(e.w, "%s;\n", stmt.LogText); err != nil {
		return nil, err
	}
	cols := 1
	if sel, ok := stmt.Node.(*ast.SelectStmt); ok && sel.Fields != nil {
		cols = len(sel.Fields.Fields)
	}
	return emptyRecordSet(cols), nil
}

type emptyRecordSet int

func (r emptyRecordSet) Columns() int {
	return int(r)
}

func (emptyRecordSet) Next(context.Context) ([]types.Datum, error) {
	return nil, nil
}

func (emptyRecordSet) Close() error {
	return nil
}
