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

package testkit

import (
	"context"
	"testing"

	"github.com/pingcap/tidb-routine/pkg/config"
	"github.com/pingcap/tidb-routine/pkg/diagnostics"
	"github.com/pingcap/tidb-routine/pkg/sp"
	"github.com/pingcap/tidb-routine/pkg/sp/compile"
	"github.com/pingcap/tidb-routine/pkg/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

var testKitIDGenerator atomic.Uint64

// TestKit is a utility to run routine tests.
type TestKit struct {
	require  *require.Assertions
	t        testing.TB
	exec     *MockExecutor
	resolver *compile.Library
	protocol *MockProtocol
	session  *sp.Session
}

// NewTestKit returns a new *TestKit with a fresh session. The routines of
// src, a TOML document, are compiled and made callable.
func NewTestKit(t testing.TB, src string) *TestKit {
	tk := &TestKit{
		require:  require.New(t),
		t:        t,
		exec:     NewMockExecutor(),
		resolver: compile.NewLibrary(),
		protocol: &MockProtocol{},
	}
	for _, r := range MustCompileTOML(t, src) {
		tk.resolver.Add(r)
	}
	tk.RefreshSession()
	return tk
}

// RefreshSession replaces the session, keeping routines and rules.
func (tk *TestKit) RefreshSession(opts ...sp.SessionOption) {
	cfg := config.NewConfig()
	opts = append([]sp.SessionOption{
		sp.WithConfig(cfg),
		sp.WithProtocol(tk.protocol),
		sp.WithConnID(testKitIDGenerator.Inc()),
	}, opts...)
	tk.session = sp.NewSession(tk.exec, tk.resolver, opts...)
}

// Session returns the session.
func (tk *TestKit) Session() *sp.Session {
	return tk.session
}

// Executor returns the scripted statement executor.
func (tk *TestKit) Executor() *MockExecutor {
	return tk.exec
}

// Protocol returns the mock client protocol.
func (tk *TestKit) Protocol() *MockProtocol {
	return tk.protocol
}

// Routine returns a compiled routine.
func (tk *TestKit) Routine(tp sp.RoutineType, name string) *sp.Routine {
	r, err := tk.resolver.GetRoutine(context.Background(), tp, name)
	tk.require.NoError(err)
	tk.require.NotNil(r, "routine %s not found", name)
	return r
}

// Call calls procedure name. Each argument is bound to a parameter; the
// returned slice holds the final value of every OUT and INOUT parameter at
// the position of its argument.
func (tk *TestKit) Call(name string, args ...any) ([]types.Datum, error) {
	return tk.CallWithContext(context.Background(), name, args...)
}

// CallWithContext is Call with an explicit context.
func (tk *TestKit) CallWithContext(ctx context.Context, name string, args ...any) ([]types.Datum, error) {
	r := tk.Routine(sp.TypeProcedure, name)
	outs := make([]types.Datum, len(args))
	spArgs := make([]sp.Arg, len(args))
	for i, arg := range args {
		i := i
		spArgs[i] = sp.Arg{
			Value: types.NewDatum(arg),
			Out: func(d types.Datum) error {
				outs[i] = d
				return nil
			},
		}
	}
	err := tk.session.CallProcedure(ctx, r, spArgs)
	return outs, err
}

// MustCall calls procedure name and requires it to succeed.
func (tk *TestKit) MustCall(name string, args ...any) []types.Datum {
	outs, err := tk.Call(name, args...)
	tk.require.NoError(err, "call %s", name)
	return outs
}

// MustCallFunction calls function name and returns its value.
func (tk *TestKit) MustCallFunction(name string, args ...any) types.Datum {
	d, err := tk.CallFunction(name, args...)
	tk.require.NoError(err, "function %s", name)
	return d
}

// CallFunction calls function name.
func (tk *TestKit) CallFunction(name string, args ...any) (types.Datum, error) {
	r := tk.Routine(sp.TypeFunction, name)
	datums := make([]types.Datum, len(args))
	for i, arg := range args {
		datums[i] = types.NewDatum(arg)
	}
	return tk.session.CallFunction(context.Background(), r, datums)
}

// MustGetErrCode calls procedure name and requires it to fail with code.
func (tk *TestKit) MustGetErrCode(name string, errCode int, args ...any) {
	_, err := tk.Call(name, args...)
	tk.require.Error(err, "call %s", name)
	tk.RequireErrCode(err, errCode)
}

// RequireErrCode requires err to carry the MySQL error code errCode.
func (tk *TestKit) RequireErrCode(err error, errCode int) {
	RequireErrCode(tk.t, err, errCode)
}

// RequireErrCode requires err to carry the MySQL error code errCode.
func RequireErrCode(t testing.TB, err error, errCode int) {
	require.Error(t, err)
	cond := diagnostics.ConditionFromError(diagnostics.LevelError, err)
	require.Equal(t, errCode, int(cond.Code), "unexpected error %v", err)
}

// MustHaveWarnings requires the session diagnostics area to hold
// conditions with the codes given, in order.
func (tk *TestKit) MustHaveWarnings(codes ...uint16) {
	var got []uint16
	for _, cond := range tk.session.Diagnostics().Conditions() {
		got = append(got, cond.Code)
	}
	if len(codes) == 0 {
		codes = nil
	}
	tk.require.Equal(codes, got)
}

// RequireEqual checks if actual is equal to the expected
func (tk *TestKit) RequireEqual(expected any, actual any, msgAndArgs ...any) {
	tk.require.Equal(expected, actual, msgAndArgs...)
}

// RequireNoError checks if error happens
func (tk *TestKit) RequireNoError(err error, msgAndArgs ...any) {
	tk.require.NoError(err, msgAndArgs...)
}

// MustCompile compiles def.
func MustCompile(t testing.TB, def *compile.Routine) *sp.Routine {
	r, err := compile.Compile(def)
	require.NoError(t, err, "compile %s", def.Name)
	return r
}

// MustCompileTOML compiles every routine of the TOML document src.
func MustCompileTOML(t testing.TB, src string) []*sp.Routine {
	defs, err := compile.Decode(src)
	require.NoError(t, err)
	routines, err := compile.CompileAll(defs)
	require.NoError(t, err)
	return routines
}

// Library returns the routines callable from the session.
func (tk *TestKit) Library() *compile.Library {
	return tk.resolver
}
