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

	"github.com/pingcap/failpoint"
	"github.com/pingcap/tidb-routine/pkg/diagnostics"
	"github.com/pingcap/tidb-routine/pkg/metrics"
	"github.com/pingcap/tidb-routine/pkg/util/logutil"
	"go.uber.org/zap"
)

// handleCondition looks for a handler of the conditions instr raised. An
// error status is matched first; otherwise the most recent warning or note
// of the instruction that has a handler is used. It returns the first ip of
// the activated handler.
func (ec *ExecContext) handleCondition(ctx context.Context, instr Instruction) (int, bool) {
	s := ec.sess
	if s.subStmtDepth > 0 && s.fatalSubStmtError {
		return 0, false
	}
	area := s.diag.Current()
	scope := instr.Scope()
	var (
		found *Handler
		cond  *diagnostics.SQLCondition
	)
	if area.IsError() {
		status := area.ErrorStatus()
		found = scope.FindHandler(status.State, status.Code, diagnostics.LevelError)
		if cond = area.ErrorCondition(); cond == nil {
			cond = status.Clone()
		}
	} else {
		for _, c := range area.StatementConditions() {
			if c.Level == diagnostics.LevelError {
				continue
			}
			if h := scope.FindHandler(c.State, c.Code, c.Level); h != nil {
				found, cond = h, c
			}
		}
	}
	if found == nil {
		return 0, false
	}
	// A handler whose declaration has not been executed yet does not catch
	// anything.
	entry := ec.rctx.findVisibleHandler(found)
	if entry == nil {
		return 0, false
	}

	frame := &handlerFrame{handler: found, cond: cond}
	label := metrics.LblExit
	if found.Type == HandlerContinue {
		frame.continueIP = continuation(instr)
		label = metrics.LblCont
	}
	ec.rctx.activatedHandlers = append(ec.rctx.activatedHandlers, frame)
	if s.protocol != nil && s.protocol.HasPartialResultSet() {
		s.protocol.EndPartialResultSet()
	}
	area.ClearError()
	s.diag.Push().PushPreexisting(cond)

	metrics.HandlerActivationCounter.WithLabelValues(label).Inc()
	logutil.Logger(ctx).Debug("activate condition handler",
		zap.Int("ip", instr.IP()),
		zap.Stringer("type", found.Type),
		zap.Uint16("code", cond.Code),
		zap.String("state", cond.State))
	logutil.Eventf(ctx, "activate %s handler for %s", found.Type, cond.State)
	failpoint.Inject("afterHandlerActivated", func() {
		logutil.Logger(ctx).Info("handler activated", zap.Int("entry", entry.firstIP))
	})
	return entry.firstIP, true
}

// exitHandler retires the running handler, continuing at next. Handlers
// and cursors of scopes deeper than the one next belongs to are dropped,
// and so are the frames of handlers declared there.
func (ec *ExecContext) exitHandler(ctx context.Context, next int) {
	rc := ec.rctx
	target := ec.routine.pctx
	if next < len(ec.routine.instrs) {
		target = ec.routine.instrs[next].Scope()
	}
	level := target.Level()
	ec.popFrame()
	for f := rc.topFrame(); f != nil && f.handler.Scope.Level() > level; f = rc.topFrame() {
		ec.popFrame()
	}
	n := len(rc.visibleHandlers)
	for n > 0 && rc.visibleHandlers[n-1].handler.Scope.Level() > level {
		n--
	}
	rc.visibleHandlers = rc.visibleHandlers[:n]
	if keep := target.CurrentCursorCount(); len(rc.cursors) > keep {
		rc.popCursors(ctx, len(rc.cursors)-keep)
	}
	ec.sess.diag.Current().ResetStatementConditionCount()
}

// popFrame removes the top handler frame and its diagnostics area. The
// conditions raised by the handler replace those of the enclosing area; the
// condition that activated the handler is gone.
func (ec *ExecContext) popFrame() {
	rc := ec.rctx
	rc.activatedHandlers = rc.activatedHandlers[:len(rc.activatedHandlers)-1]
	nested := ec.sess.diag.Pop()
	parent := ec.sess.diag.Current()
	parent.ClearError()
	parent.ResetConditions()
	if nested != nil {
		parent.CopyNewConditions(nested)
	}
}

// unwindHandlers drops the frames of handlers still running when the
// invocation ends, keeping what they raised.
func (ec *ExecContext) unwindHandlers() {
	rc := ec.rctx
	for len(rc.activatedHandlers) > 0 {
		rc.activatedHandlers = rc.activatedHandlers[:len(rc.activatedHandlers)-1]
		if nested := ec.sess.diag.Pop(); nested != nil {
			ec.sess.diag.Current().MergeNested(nested)
		}
	}
}
