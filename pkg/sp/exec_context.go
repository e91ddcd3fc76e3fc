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
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pingcap/tidb-routine/pkg/errno"
	"github.com/pingcap/tidb-routine/pkg/expression"
	"github.com/pingcap/tidb-routine/pkg/metrics"
	"github.com/pingcap/tidb-routine/pkg/types"
	"github.com/pingcap/tidb-routine/pkg/util/logutil"
	"go.uber.org/zap"
)

// ExecContext is the state of one running invocation as instructions and
// expressions see it.
type ExecContext struct {
	ctx     context.Context
	sess    *Session
	routine *Routine
	rctx    *RContext
	ip      int
}

var _ expression.EvalContext = (*ExecContext)(nil)

// Session returns the session the invocation runs in.
func (ec *ExecContext) Session() *Session {
	return ec.sess
}

// RContext returns the runtime context of the invocation.
func (ec *ExecContext) RContext() *RContext {
	return ec.rctx
}

// GetVariable implements expression.EvalContext interface.
func (ec *ExecContext) GetVariable(idx int) types.Datum {
	return ec.rctx.vars[idx]
}

// GetCaseExpr implements expression.EvalContext interface.
func (ec *ExecContext) GetCaseExpr(idx int) types.Datum {
	return ec.rctx.caseExprs[idx]
}

// GetUserVar implements expression.EvalContext interface.
func (ec *ExecContext) GetUserVar(name string) (types.Datum, bool) {
	return ec.sess.GetUserVar(name)
}

// GetTriggerField implements expression.EvalContext interface.
func (ec *ExecContext) GetTriggerField(old bool, name string) (types.Datum, error) {
	if ec.rctx.trigger == nil {
		which := "NEW"
		if old {
			which = "OLD"
		}
		return types.Datum{}, ErrTrgNoSuchRowInTrg.GenWithStackByArgs(which, strings.ToLower(ec.routine.tp.String()))
	}
	return ec.rctx.trigger.get(old, name)
}

// AppendWarning implements expression.EvalContext interface.
func (ec *ExecContext) AppendWarning(err error) {
	ec.sess.AppendWarning(err)
}

// DivisionByZeroIsError implements expression.EvalContext interface.
func (ec *ExecContext) DivisionByZeroIsError() bool {
	return ec.sess.cfg.Routine.DivisionByZeroError
}

// EvalSubquery implements expression.EvalContext interface.
func (ec *ExecContext) EvalSubquery(text string) (types.Datum, error) {
	stmt, err := ec.rewriteQuery(text)
	if err != nil {
		return types.Datum{}, err
	}
	rs, err := ec.sess.executor.Query(ec.ctx, ec.sess, stmt)
	if err != nil {
		return types.Datum{}, err
	}
	defer func() {
		if err := rs.Close(); err != nil {
			logutil.Logger(ec.ctx).Warn("close subquery result failed", zap.Error(err))
		}
	}()
	if rs.Columns() != 1 {
		return types.Datum{}, ErrOperandColumns.GenWithStackByArgs(1)
	}
	row, err := rs.Next(ec.ctx)
	if err != nil || row == nil {
		return types.Datum{}, err
	}
	more, err := rs.Next(ec.ctx)
	if err != nil {
		return types.Datum{}, err
	}
	if more != nil {
		return types.Datum{}, ErrSubqueryNo1Row.GenWithStackByArgs()
	}
	return row[0], nil
}

// CallFunction implements expression.EvalContext interface.
func (ec *ExecContext) CallFunction(name string, args []types.Datum) (types.Datum, error) {
	r, err := ec.sess.getRoutine(ec.ctx, TypeFunction, name)
	if err != nil {
		return types.Datum{}, err
	}
	return ec.sess.callFunction(ec.ctx, r, args)
}

func (ec *ExecContext) callProcedure(ctx context.Context, name string, exprs []expression.Expression) error {
	r, err := ec.sess.getRoutine(ctx, TypeProcedure, name)
	if err != nil {
		return err
	}
	params := r.pctx.Params()
	args := make([]Arg, len(exprs))
	for i, e := range exprs {
		mode := ParamIn
		if i < len(params) {
			mode = params[i].Mode
		}
		if mode != ParamOut {
			if args[i].Value, err = e.Eval(ec); err != nil {
				return err
			}
		}
		if mode != ParamIn {
			if args[i].Out, err = ec.outTarget(e, i, r.name); err != nil {
				return err
			}
		}
	}
	return ec.sess.callProcedure(ctx, r, args)
}

// outTarget returns the setter receiving an OUT or INOUT argument.
func (ec *ExecContext) outTarget(e expression.Expression, pos int, routine string) (func(types.Datum) error, error) {
	switch x := e.(type) {
	case *expression.SPVariable:
		return func(d types.Datum) error {
			return ec.rctx.setVariableDatum(x.Idx, d)
		}, nil
	case *expression.UserVar:
		return func(d types.Datum) error {
			ec.sess.SetUserVar(x.Name, d)
			return nil
		}, nil
	case *expression.TriggerField:
		if !x.Old && ec.rctx.trigger != nil {
			return func(d types.Datum) error {
				return ec.rctx.trigger.set(x.Name, d)
			}, nil
		}
	}
	return nil, ErrSpNotVarArg.GenWithStackByArgs(pos+1, routine)
}

func (ec *ExecContext) execStmt(ctx context.Context, lk *lexKeeper, t *parsedTree) error {
	stmt, err := ec.buildStmt(lk, t)
	if err != nil {
		return err
	}
	s := ec.sess
	prev := s.currentStmt
	s.currentStmt = stmt.LogText
	defer func() { s.currentStmt = prev }()

	logCfg := &s.cfg.Log
	entry := &logutil.StmtEntry{ConnID: s.connID, Routine: ec.routine.qualifiedName(), IP: ec.ip, SQL: stmt.LogText}
	if logCfg.GeneralLog {
		logutil.LogGeneral(entry, logCfg.QueryLogMaxLen)
	}
	start := time.Now()
	err = s.executor.ExecStmt(ctx, s, stmt)
	if entry.Cost = time.Since(start); logCfg.SlowThreshold > 0 && entry.Cost > time.Duration(logCfg.SlowThreshold)*time.Millisecond {
		entry.Succ = err == nil
		logutil.LogSlow(entry, logCfg.QueryLogMaxLen)
	}
	return err
}

func (t RoutineType) metricLabel() string {
	switch t {
	case TypeFunction:
		return metrics.LblFunc
	case TypeTrigger:
		return metrics.LblTrigger
	}
	return metrics.LblProc
}

// execute runs the instructions of r from ip 0 until the end of the routine
// or an error no handler catches.
func (s *Session) execute(ctx context.Context, r *Routine, rc *RContext) (err error) {
	ctx = logutil.WithRoutine(ctx, r.qualifiedName())
	if span := opentracing.SpanFromContext(ctx); span != nil && span.Tracer() != nil {
		span1 := span.Tracer().StartSpan("sp.execute", opentracing.ChildOf(span.Context()))
		span1.SetTag("routine", r.qualifiedName())
		defer span1.Finish()
		ctx = opentracing.ContextWithSpan(ctx, span1)
	}
	start := time.Now()
	label := r.tp.metricLabel()
	ec := &ExecContext{ctx: ctx, sess: s, routine: r, rctx: rc}
	defer func() {
		ec.unwindHandlers()
		metrics.RoutineDurationHistogram.WithLabelValues(label).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.RoutineErrorCounter.WithLabelValues(label).Inc()
			logutil.Logger(ctx).Debug("routine failed", zap.Int("ip", ec.ip), zap.Error(err))
		}
	}()

	for ec.ip < len(r.instrs) {
		instr := r.instrs[ec.ip]
		area := s.diag.Current()
		if s.isKilled(ctx) {
			err := ErrQueryInterrupted.GenWithStackByArgs()
			if !area.IsError() {
				area.SetError(err)
			}
			logutil.Logger(ctx).Info("routine interrupted", zap.Int("ip", ec.ip))
			return err
		}
		area.ResetStatementConditionCount()
		if stmt, ok := instr.(*StmtInstr); ok && !stmt.keepsDiagnostics {
			area.ResetConditions()
		}

		next, err := instr.Execute(ctx, ec)
		metrics.InstructionCounter.WithLabelValues(instr.opName()).Inc()
		if err != nil {
			if area := s.diag.Current(); !area.IsError() {
				area.SetError(err)
			}
			if s.subStmtDepth > 0 && errno.IsFatalInSubStatement(errCode(err)) {
				s.fatalSubStmtError = true
			}
		}
		if !s.isKilled(ctx) {
			if handlerIP, ok := ec.handleCondition(ctx, instr); ok {
				ec.ip = handlerIP
				continue
			}
		}
		if err != nil {
			return err
		}
		ec.ip = next
	}
	return nil
}
