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

	"github.com/pingcap/tidb-routine/pkg/diagnostics"
	"github.com/pingcap/tidb-routine/pkg/expression"
	"github.com/pingcap/tidb-routine/pkg/metrics"
	"github.com/pingcap/tidb-routine/pkg/types"
	"github.com/pingcap/tidb-routine/pkg/util/logutil"
	"github.com/pingcap/tidb-routine/pkg/util/memory"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// handlerEntry is a handler whose declaring scope has been entered.
type handlerEntry struct {
	handler *Handler
	firstIP int
}

// handlerFrame is a running handler.
type handlerFrame struct {
	handler *Handler
	cond    *diagnostics.SQLCondition
	// continueIP is where a CONTINUE handler resumes.
	continueIP int
}

// RContext is the runtime state of one routine invocation. It is owned by
// the invocation and never shared.
type RContext struct {
	routine *Routine

	vars     []types.Datum
	varTypes []*types.FieldType
	varMem   []int64

	caseExprs   []types.Datum
	caseExprMem []int64

	cursors []*Cursor

	visibleHandlers   []handlerEntry
	activatedHandlers []*handlerFrame

	returnValue types.Datum
	returnSet   bool

	trigger    *TriggerRows
	memTracker *memory.Tracker
}

func newRContext(r *Routine, parent *memory.Tracker, quota int64) *RContext {
	vars := r.pctx.Variables()
	rc := &RContext{
		routine:     r,
		vars:        make([]types.Datum, len(vars)),
		varTypes:    make([]*types.FieldType, len(vars)),
		varMem:      make([]int64, len(vars)),
		caseExprs:   make([]types.Datum, r.pctx.NumCaseExprs()),
		caseExprMem: make([]int64, r.pctx.NumCaseExprs()),
		cursors:     make([]*Cursor, 0, r.pctx.MaxCursorIndex()),
		memTracker:  memory.NewTracker(memory.LabelForRoutineCall, quota),
	}
	for i, v := range vars {
		rc.varTypes[i] = v.Type
	}
	if parent != nil {
		rc.memTracker.AttachTo(parent)
	}
	return rc
}

// NumVariables returns the number of variable slots.
func (rc *RContext) NumVariables() int {
	return len(rc.vars)
}

// Variable returns the value of the slot idx.
func (rc *RContext) Variable(idx int) types.Datum {
	return rc.vars[idx]
}

// charge moves the memory accounted to a slot from *slot to the size of d.
func (rc *RContext) charge(slot *int64, d *types.Datum) error {
	var size int64
	if !d.IsNull() {
		size = d.EstimatedMemUsage()
	}
	if exceeded := rc.memTracker.TryConsume(size - *slot); exceeded != nil {
		metrics.MemoryQuotaExceedCounter.Inc()
		return ErrOutOfResources.GenWithStackByArgs()
	}
	*slot = size
	return nil
}

func (rc *RContext) release(slot *int64) {
	rc.memTracker.Consume(-*slot)
	*slot = 0
}

// setVariable evaluates expr into the slot idx. On failure the slot is set
// to NULL so that a CONTINUE handler sees a consistent state.
func (rc *RContext) setVariable(ec expression.EvalContext, idx int, expr expression.Expression) error {
	d, err := expr.Eval(ec)
	if err != nil {
		rc.setNull(idx)
		return err
	}
	return rc.setVariableDatum(idx, d)
}

// setVariableDatum converts d to the type of the slot idx and stores it.
func (rc *RContext) setVariableDatum(idx int, d types.Datum) error {
	name := rc.routine.pctx.Variables()[idx].Name
	d, err := d.ConvertTo(rc.varTypes[idx], name)
	if err != nil {
		rc.setNull(idx)
		return err
	}
	if err := rc.charge(&rc.varMem[idx], &d); err != nil {
		rc.setNull(idx)
		return err
	}
	rc.vars[idx] = d
	return nil
}

func (rc *RContext) setNull(idx int) {
	rc.release(&rc.varMem[idx])
	rc.vars[idx].SetNull()
}

func (rc *RContext) setCaseExpr(ec expression.EvalContext, idx int, expr expression.Expression) error {
	d, err := expr.Eval(ec)
	if err == nil {
		err = rc.charge(&rc.caseExprMem[idx], &d)
	}
	if err != nil {
		rc.release(&rc.caseExprMem[idx])
		rc.caseExprs[idx].SetNull()
		return err
	}
	rc.caseExprs[idx] = d
	return nil
}

func (rc *RContext) setReturnValue(ec expression.EvalContext, expr expression.Expression, tp *types.FieldType) error {
	d, err := expr.Eval(ec)
	if err != nil {
		return err
	}
	if d, err = d.ConvertTo(tp, rc.routine.name); err != nil {
		return err
	}
	rc.returnValue, rc.returnSet = d, true
	return nil
}

func (rc *RContext) pushHandler(h *Handler, firstIP int) {
	rc.visibleHandlers = append(rc.visibleHandlers, handlerEntry{handler: h, firstIP: firstIP})
}

func (rc *RContext) popHandlers(count int) {
	rc.visibleHandlers = rc.visibleHandlers[:max(len(rc.visibleHandlers)-count, 0)]
}

func (rc *RContext) findVisibleHandler(h *Handler) *handlerEntry {
	for i := len(rc.visibleHandlers) - 1; i >= 0; i-- {
		if rc.visibleHandlers[i].handler == h {
			return &rc.visibleHandlers[i]
		}
	}
	return nil
}

func (rc *RContext) topFrame() *handlerFrame {
	if len(rc.activatedHandlers) == 0 {
		return nil
	}
	return rc.activatedHandlers[len(rc.activatedHandlers)-1]
}

func (rc *RContext) pushCursor(instr *CPushInstr) {
	rc.cursors = append(rc.cursors, &Cursor{instr: instr})
}

func (rc *RContext) cursor(offset int) *Cursor {
	return rc.cursors[offset]
}

// popCursors removes count cursors, closing those still open.
func (rc *RContext) popCursors(ctx context.Context, count int) {
	n := max(len(rc.cursors)-count, 0)
	if err := closeCursors(rc.cursors[n:]); err != nil {
		logutil.Logger(ctx).Warn("close cursor failed", zap.Error(err))
	}
	rc.cursors = rc.cursors[:n]
}

func closeCursors(cursors []*Cursor) error {
	var err error
	for i := len(cursors) - 1; i >= 0; i-- {
		if cursors[i].IsOpen() {
			err = multierr.Append(err, cursors[i].close())
		}
	}
	return err
}

// close releases what the invocation still holds.
func (rc *RContext) close() error {
	err := closeCursors(rc.cursors)
	rc.cursors = rc.cursors[:0]
	rc.memTracker.Detach()
	return err
}
