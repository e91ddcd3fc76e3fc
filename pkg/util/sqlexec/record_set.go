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
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/tidb-routine/pkg/sp"
	"github.com/pingcap/tidb-routine/pkg/types"
	"github.com/pingcap/tidb-routine/pkg/util/memory"
)

// recordSet is a sp.RecordSet over the rows of a server query.
type recordSet struct {
	rows  *sql.Rows
	names []string
	types []*sql.ColumnType
}

// Columns implements the sp.RecordSet interface.
func (r *recordSet) Columns() int {
	return len(r.names)
}

// Next implements the sp.RecordSet interface.
func (r *recordSet) Next(ctx context.Context) ([]types.Datum, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	if !r.rows.Next() {
		return nil, errors.Trace(r.rows.Err())
	}
	values := make([]any, len(r.names))
	dest := make([]any, len(r.names))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := r.rows.Scan(dest...); err != nil {
		return nil, errors.Trace(err)
	}
	row := make([]types.Datum, len(values))
	for i, v := range values {
		d, err := convertValue(v, r.types[i])
		if err != nil {
			return nil, err
		}
		row[i] = d
	}
	return row, nil
}

// Close implements the sp.RecordSet interface.
func (r *recordSet) Close() error {
	return errors.Trace(r.rows.Close())
}

// bufferedRecordSet is a sp.RecordSet over rows held in memory.
type bufferedRecordSet struct {
	columns int
	rows    [][]types.Datum
	idx     int
	mem     *memory.Tracker
}

func newBufferedRecordSet(columns int, session *memory.Tracker) *bufferedRecordSet {
	mem := memory.NewTracker(memory.LabelForCursor, -1)
	mem.AttachTo(session)
	return &bufferedRecordSet{columns: columns, mem: mem}
}

// fill reads every row of rs.
func (b *bufferedRecordSet) fill(ctx context.Context, rs *recordSet) error {
	for {
		row, err := rs.Next(ctx)
		if err != nil || row == nil {
			return err
		}
		var size int64
		for i := range row {
			size += row[i].EstimatedMemUsage()
		}
		if b.mem.TryConsume(size) != nil {
			return sp.ErrOutOfResources.GenWithStackByArgs()
		}
		b.rows = append(b.rows, row)
	}
}

// Columns implements the sp.RecordSet interface.
func (b *bufferedRecordSet) Columns() int {
	return b.columns
}

// Next implements the sp.RecordSet interface.
func (b *bufferedRecordSet) Next(ctx context.Context) ([]types.Datum, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	if b.idx >= len(b.rows) {
		return nil, nil
	}
	row := b.rows[b.idx]
	b.rows[b.idx] = nil
	b.idx++
	return row, nil
}

// Close implements the sp.RecordSet interface.
func (b *bufferedRecordSet) Close() error {
	b.rows = nil
	b.mem.Consume(-b.mem.BytesConsumed())
	b.mem.Detach()
	return nil
}

// convertValue turns a value scanned by the driver into a datum. The text
// protocol returns every value as bytes; the column type tells how to read
// them.
func convertValue(v any, ct *sql.ColumnType) (types.Datum, error) {
	switch x := v.(type) {
	case nil:
		return types.Datum{}, nil
	case time.Time:
		return types.NewStringDatum(x.Format(time.DateTime)), nil
	case []byte:
		return convertText(string(x), ct)
	case string:
		return convertText(x, ct)
	}
	return types.NewDatum(v), nil
}

func convertText(s string, ct *sql.ColumnType) (types.Datum, error) {
	if ct == nil {
		return types.NewStringDatum(s), nil
	}
	name := strings.ToUpper(ct.DatabaseTypeName())
	unsigned := strings.HasPrefix(name, "UNSIGNED ")
	name = strings.TrimPrefix(name, "UNSIGNED ")
	switch name {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "BIGINT", "YEAR":
		if unsigned {
			u, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return types.Datum{}, errors.Trace(err)
			}
			return types.NewUintDatum(u), nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return types.Datum{}, errors.Trace(err)
		}
		return types.NewIntDatum(i), nil
	case "FLOAT", "DOUBLE":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.Datum{}, errors.Trace(err)
		}
		return types.NewFloat64Datum(f), nil
	case "DECIMAL":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.Datum{}, errors.Trace(err)
		}
		frac := 0
		if dot := strings.IndexByte(s, '.'); dot >= 0 {
			frac = len(s) - dot - 1
		}
		return types.NewDecimalDatum(f, frac), nil
	}
	return types.NewStringDatum(s), nil
}
