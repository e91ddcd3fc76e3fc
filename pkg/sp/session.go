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

	"github.com/pingcap/tidb-routine/pkg/config"
	"github.com/pingcap/tidb-routine/pkg/diagnostics"
	"github.com/pingcap/tidb-routine/pkg/types"
	"github.com/pingcap/tidb-routine/pkg/util/logutil"
	"github.com/pingcap/tidb-routine/pkg/util/memory"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Session is the connection state routines run in. A session runs one
// top-level call at a time; only Kill may be called concurrently.
type Session struct {
	executor StmtExecutor
	resolver RoutineResolver
	protocol Protocol
	connID   uint64
	cfg      *config.Config

	diag       *diagnostics.Stack
	killed     atomic.Bool
	userVars   map[string]types.Datum
	memTracker *memory.Tracker
	memAction  *memory.LogOnExceed

	observers []*reprepareObserver

	// depth counts the running invocations, subStmtDepth those running as
	// part of an enclosing statement (functions and triggers).
	depth             int
	subStmtDepth      int
	fatalSubStmtError bool
	active            map[string]int
	currentStmt       string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithProtocol sets the client protocol layer.
func WithProtocol(p Protocol) SessionOption {
	return func(s *Session) {
		s.protocol = p
	}
}

// WithConnID sets the connection id used in logs.
func WithConnID(id uint64) SessionOption {
	return func(s *Session) {
		s.connID = id
	}
}

// WithConfig overrides the global configuration.
func WithConfig(cfg *config.Config) SessionOption {
	return func(s *Session) {
		s.cfg = cfg
	}
}

// NewSession creates a session running statements with executor and
// resolving called routines with resolver, which may be nil.
func NewSession(executor StmtExecutor, resolver RoutineResolver, opts ...SessionOption) *Session {
	s := &Session{
		executor: executor,
		resolver: resolver,
		cfg:      config.GetGlobalConfig(),
		userVars: make(map[string]types.Datum),
		active:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.diag = diagnostics.NewStack(s.cfg.Routine.MaxErrorCount)
	s.memAction = &memory.LogOnExceed{ConnID: s.connID}
	s.memTracker = memory.NewTracker(memory.LabelForSession, int64(s.cfg.Routine.MemQuotaPerSession))
	s.memTracker.SetActionOnExceed(s.memAction)
	return s
}

// ConnID returns the connection id.
func (s *Session) ConnID() uint64 {
	return s.connID
}

// Config returns the configuration of the session.
func (s *Session) Config() *config.Config {
	return s.cfg
}

// Kill interrupts the running call. It is checked before every instruction
// and every cursor fetch.
func (s *Session) Kill() {
	s.killed.Store(true)
}

func (s *Session) isKilled(ctx context.Context) bool {
	return s.killed.Load() || ctx.Err() != nil
}

func (s *Session) isFatalOrKilled(ctx context.Context) bool {
	return s.isKilled(ctx) || (s.subStmtDepth > 0 && s.fatalSubStmtError)
}

// Diagnostics returns the current diagnostics area.
func (s *Session) Diagnostics() *diagnostics.Area {
	return s.diag.Current()
}

// DiagnosticsDepth returns the number of stacked diagnostics areas, one
// more than the number of running handlers.
func (s *Session) DiagnosticsDepth() int {
	return s.diag.Depth()
}

// AppendWarning records a warning in the current diagnostics area.
func (s *Session) AppendWarning(err error) {
	s.diag.Current().AppendWarning(err)
}

// SetUserVar sets @name.
func (s *Session) SetUserVar(name string, d types.Datum) {
	s.userVars[strings.ToLower(name)] = d
}

// GetUserVar returns @name.
func (s *Session) GetUserVar(name string) (types.Datum, bool) {
	d, ok := s.userVars[strings.ToLower(name)]
	return d, ok
}

// CurrentStmt returns the text of the statement instruction being executed
// in the form written to the logs.
func (s *Session) CurrentStmt() string {
	return s.currentStmt
}

// InSubStatement reports whether a function or trigger is running.
func (s *Session) InSubStatement() bool {
	return s.subStmtDepth > 0
}

// MemoryTracker returns the tracker routine invocations charge to.
func (s *Session) MemoryTracker() *memory.Tracker {
	return s.memTracker
}

// ReportMetadataChange is called by the statement executor when the plan of
// the running statement is stale. It returns the error the executor must
// fail with, or nil when the statement cannot be re-prepared and the
// executor should go on. Only the innermost running statement is
// considered; an empty slot means it cannot be re-prepared.
func (s *Session) ReportMetadataChange() error {
	n := len(s.observers)
	if n == 0 || s.observers[n-1] == nil {
		return nil
	}
	s.observers[n-1].invalidated = true
	return ErrNeedReprepare.GenWithStackByArgs()
}

// pushObserver installs obs for the statement about to run. obs may be nil.
func (s *Session) pushObserver(obs *reprepareObserver) {
	s.observers = append(s.observers, obs)
}

func (s *Session) popObserver() {
	s.observers = s.observers[:len(s.observers)-1]
}

func (s *Session) getRoutine(ctx context.Context, tp RoutineType, name string) (*Routine, error) {
	if s.resolver == nil {
		return nil, ErrSpDoesNotExist.GenWithStackByArgs(tp.String(), name)
	}
	r, err := s.resolver.GetRoutine(ctx, tp, name)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrSpDoesNotExist.GenWithStackByArgs(tp.String(), name)
	}
	return r, nil
}

// enter starts an invocation. A top-level invocation starts with an empty
// diagnostics area and clears the kill flag when it ends.
func (s *Session) enter() (leave func(err error)) {
	if s.depth == 0 {
		s.diag.Current().Reset()
	}
	s.depth++
	return func(err error) {
		s.depth--
		if s.depth > 0 {
			return
		}
		if err != nil {
			if area := s.diag.Current(); !area.IsError() {
				area.SetError(err)
			}
		}
		s.killed.Store(false)
	}
}

// CallProcedure runs procedure r with args.
func (s *Session) CallProcedure(ctx context.Context, r *Routine, args []Arg) (err error) {
	leave := s.enter()
	defer func() { leave(err) }()
	return s.callProcedure(ctx, r, args)
}

// CallFunction runs function r and returns its result.
func (s *Session) CallFunction(ctx context.Context, r *Routine, args []types.Datum) (_ types.Datum, err error) {
	leave := s.enter()
	defer func() { leave(err) }()
	return s.callFunction(ctx, r, args)
}

// FireTrigger runs trigger r on rows. Assignments to NEW columns are
// written back to rows.New.
func (s *Session) FireTrigger(ctx context.Context, r *Routine, rows *TriggerRows) (err error) {
	leave := s.enter()
	defer func() { leave(err) }()
	return s.fireTrigger(ctx, r, rows)
}

func (s *Session) newRContext(r *Routine) *RContext {
	rc := newRContext(r, s.memTracker, int64(s.cfg.Routine.MemQuotaPerCall))
	rc.memTracker.SetActionOnExceed(s.memAction)
	return rc
}

func (s *Session) callProcedure(ctx context.Context, r *Routine, args []Arg) error {
	if r.tp != TypeProcedure {
		return ErrSpDoesNotExist.GenWithStackByArgs(TypeProcedure.String(), r.name)
	}
	params := r.pctx.Params()
	if len(args) != len(params) {
		return ErrSpWrongNoOfArgs.GenWithStackByArgs(TypeProcedure.String(), r.name, len(params), len(args))
	}
	key := r.qualifiedName()
	if limit := s.cfg.Routine.MaxRecursionDepth; s.active[key] > limit {
		return ErrSpRecursionLimit.GenWithStackByArgs(limit, r.name)
	}
	s.active[key]++
	defer func() { s.active[key]-- }()

	rc := s.newRContext(r)
	defer s.closeRContext(ctx, rc)
	for i, p := range params {
		if p.Mode == ParamOut {
			continue
		}
		if err := rc.setVariableDatum(p.Offset, args[i].Value); err != nil {
			return err
		}
	}
	if err := s.execute(ctx, r, rc); err != nil {
		return err
	}
	for i, p := range params {
		if p.Mode == ParamIn || args[i].Out == nil {
			continue
		}
		if err := args[i].Out(rc.vars[p.Offset]); err != nil {
			return err
		}
	}
	return nil
}

// enterSubStatement marks the start of a function or trigger. A fatal
// sub-statement error is forgotten once no sub-statement runs anymore.
func (s *Session) enterSubStatement(r *Routine) (leave func(), err error) {
	key := r.qualifiedName()
	if s.active[key] > 0 {
		return nil, ErrSpNoRecursion.GenWithStackByArgs()
	}
	s.active[key]++
	s.subStmtDepth++
	return func() {
		s.active[key]--
		s.subStmtDepth--
		if s.subStmtDepth == 0 {
			s.fatalSubStmtError = false
		}
	}, nil
}

func (s *Session) callFunction(ctx context.Context, r *Routine, args []types.Datum) (types.Datum, error) {
	if r.tp != TypeFunction {
		return types.Datum{}, ErrSpDoesNotExist.GenWithStackByArgs(TypeFunction.String(), r.name)
	}
	params := r.pctx.Params()
	if len(args) != len(params) {
		return types.Datum{}, ErrSpWrongNoOfArgs.GenWithStackByArgs(TypeFunction.String(), r.name, len(params), len(args))
	}
	leave, err := s.enterSubStatement(r)
	if err != nil {
		return types.Datum{}, err
	}
	defer leave()

	rc := s.newRContext(r)
	defer s.closeRContext(ctx, rc)
	for i, p := range params {
		if err := rc.setVariableDatum(p.Offset, args[i]); err != nil {
			return types.Datum{}, err
		}
	}
	if err := s.execute(ctx, r, rc); err != nil {
		return types.Datum{}, err
	}
	if !rc.returnSet {
		return types.Datum{}, ErrSpNoReturnEnd.GenWithStackByArgs(r.name)
	}
	return rc.returnValue, nil
}

func (s *Session) fireTrigger(ctx context.Context, r *Routine, rows *TriggerRows) error {
	if r.tp != TypeTrigger {
		return ErrSpDoesNotExist.GenWithStackByArgs(TypeTrigger.String(), r.name)
	}
	leave, err := s.enterSubStatement(r)
	if err != nil {
		return err
	}
	defer leave()

	rc := s.newRContext(r)
	rc.trigger = rows
	defer s.closeRContext(ctx, rc)
	return s.execute(ctx, r, rc)
}

func (s *Session) closeRContext(ctx context.Context, rc *RContext) {
	logutil.Logger(ctx).Debug("routine invocation finished",
		zap.String("routine", rc.routine.qualifiedName()),
		zap.Int64("mem-max", rc.memTracker.MaxConsumed()))
	if err := rc.close(); err != nil {
		logutil.Logger(ctx).Warn("release routine context failed",
			zap.String("routine", rc.routine.qualifiedName()), zap.Error(err))
	}
}
