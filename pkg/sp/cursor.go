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

package sp

import (
	"context"

	"github.com/pingcap/tidb-routine/pkg/metrics"
)

// Cursor is a routine cursor. It is closed until opened and closes itself
// when a fetch finds no more rows.
type Cursor struct {
	instr *CPushInstr
	rs    RecordSet
}

// IsOpen reports whether the cursor holds a result set.
func (c *Cursor) IsOpen() bool {
	return c.rs != nil
}

func (c *Cursor) open(ctx context.Context, ec *ExecContext) error {
	if c.IsOpen() {
		return ErrSpCursorAlreadyOpen.GenWithStackByArgs()
	}
	lk := c.instr.keeper
	return lk.execute(ctx, ec, func(t *parsedTree) error {
		stmt, err := ec.buildStmt(lk, t)
		if err != nil {
			return err
		}
		rs, err := ec.sess.executor.Query(ctx, ec.sess, stmt)
		if err != nil {
			return err
		}
		c.rs = rs
		metrics.OpenCursorGauge.Inc()
		return nil
	})
}

func (c *Cursor) fetch(ctx context.Context, ec *ExecContext, vars []*Variable) error {
	if !c.IsOpen() {
		return ErrSpCursorNotOpen.GenWithStackByArgs()
	}
	if ec.sess.isKilled(ctx) {
		return ErrQueryInterrupted.GenWithStackByArgs()
	}
	if c.rs.Columns() != len(vars) {
		return ErrSpWrongNoOfFetchArgs.GenWithStackByArgs()
	}
	row, err := c.rs.Next(ctx)
	if err != nil {
		return err
	}
	if row == nil {
		if err := c.close(); err != nil {
			return err
		}
		return ErrSpFetchNoData.GenWithStackByArgs()
	}
	for i, v := range vars {
		if err := ec.rctx.setVariableDatum(v.Offset, row[i]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cursor) close() error {
	if !c.IsOpen() {
		return ErrSpCursorNotOpen.GenWithStackByArgs()
	}
	rs := c.rs
	c.rs = nil
	metrics.OpenCursorGauge.Dec()
	return rs.Close()
}
