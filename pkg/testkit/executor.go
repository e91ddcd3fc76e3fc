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
	"regexp"

	"github.com/pingcap/tidb-routine/pkg/errno"
	"github.com/pingcap/tidb-routine/pkg/sp"
	"github.com/pingcap/tidb-routine/pkg/types"
	"github.com/pingcap/tidb-routine/pkg/util/dbterror"
	"github.com/pingcap/tidb-routine/pkg/util/syncutil"
	"go.uber.org/atomic"
)

// ErrNoSuchTable is returned for queries no rule matches.
var ErrNoSuchTable = dbterror.ClassExecutor.NewStd(errno.ErrNoSuchTable)

// Rule is the scripted outcome of the statements matching a pattern.
type Rule struct {
	re       *regexp.Regexp
	query    bool
	err      error
	warnings []error
	cols     int
	rows     [][]types.Datum
	fn       func(ctx context.Context, sess *sp.Session, stmt *sp.Stmt) error
	hits     atomic.Int64
}

// Fail makes the matching statements fail with err.
func (r *Rule) Fail(err error) *Rule {
	r.err = err
	return r
}

// Warn makes the matching statements raise warnings.
func (r *Rule) Warn(warnings ...error) *Rule {
	r.warnings = append(r.warnings, warnings...)
	return r
}

// Do runs fn for the matching statements. Its error is the result of the
// statement.
func (r *Rule) Do(fn func(ctx context.Context, sess *sp.Session, stmt *sp.Stmt) error) *Rule {
	r.fn = fn
	return r
}

// Hits returns the number of statements the rule matched.
func (r *Rule) Hits() int {
	return int(r.hits.Load())
}

func (r *Rule) apply(ctx context.Context, sess *sp.Session, stmt *sp.Stmt) error {
	r.hits.Inc()
	for _, w := range r.warnings {
		sess.AppendWarning(w)
	}
	if r.fn != nil {
		if err := r.fn(ctx, sess, stmt); err != nil {
			return err
		}
	}
	return r.err
}

// MockExecutor is a scripted sp.StmtExecutor. Statements are matched against
// the rules by their rewritten text, the most recently added rule first.
// Statements no rule matches succeed; queries no rule matches fail with
// ErrNoSuchTable.
type MockExecutor struct {
	mu       syncutil.Mutex
	rules    []*Rule
	executed []string
	logged   []string
	stale    int
	open     atomic.Int64
}

// NewMockExecutor creates an executor without rules.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

// OnExec adds a rule for statements matching the regular expression
// pattern.
func (e *MockExecutor) OnExec(pattern string) *Rule {
	return e.addRule(&Rule{re: regexp.MustCompile("(?i)" + pattern)})
}

// OnQuery adds a rule for queries matching pattern. They return rows of
// cols columns.
func (e *MockExecutor) OnQuery(pattern string, cols int, rows ...[]types.Datum) *Rule {
	return e.addRule(&Rule{re: regexp.MustCompile("(?i)" + pattern), query: true, cols: cols, rows: rows})
}

func (e *MockExecutor) addRule(r *Rule) *Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, r)
	return r
}

// SetStale makes the next n statements report a metadata change to the
// session. A negative n makes every statement stale.
func (e *MockExecutor) SetStale(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stale = n
}

// Executed returns the texts of the statements executed so far.
func (e *MockExecutor) Executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.executed...)
}

// Logged returns the log form of the statements executed so far.
func (e *MockExecutor) Logged() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.logged...)
}

// OpenRecordSets returns the number of result sets not closed yet.
func (e *MockExecutor) OpenRecordSets() int {
	return int(e.open.Load())
}

func (e *MockExecutor) begin(sess *sp.Session, stmt *sp.Stmt, query bool) (*Rule, error) {
	e.mu.Lock()
	e.executed = append(e.executed, stmt.Text)
	e.logged = append(e.logged, stmt.LogText)
	stale := e.stale != 0
	var rule *Rule
	for i := len(e.rules) - 1; i >= 0; i-- {
		if r := e.rules[i]; r.query == query && r.re.MatchString(stmt.Text) {
			rule = r
			break
		}
	}
	e.mu.Unlock()
	if stale {
		if err := sess.ReportMetadataChange(); err != nil {
			e.mu.Lock()
			if e.stale > 0 {
				e.stale--
			}
			e.mu.Unlock()
			return nil, err
		}
	}
	return rule, nil
}

// ExecStmt implements sp.StmtExecutor interface.
func (e *MockExecutor) ExecStmt(ctx context.Context, sess *sp.Session, stmt *sp.Stmt) error {
	rule, err := e.begin(sess, stmt, false)
	if err != nil || rule == nil {
		return err
	}
	return rule.apply(ctx, sess, stmt)
}

// Query implements sp.StmtExecutor interface.
func (e *MockExecutor) Query(ctx context.Context, sess *sp.Session, stmt *sp.Stmt) (sp.RecordSet, error) {
	rule, err := e.begin(sess, stmt, true)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, ErrNoSuchTable.GenWithStackByArgs("test", stmt.Text)
	}
	if err := rule.apply(ctx, sess, stmt); err != nil {
		return nil, err
	}
	e.open.Inc()
	return &rowsRecordSet{cols: rule.cols, rows: rule.rows, open: &e.open}, nil
}

type rowsRecordSet struct {
	cols   int
	rows   [][]types.Datum
	idx    int
	open   *atomic.Int64
	closed bool
}

func (r *rowsRecordSet) Columns() int {
	return r.cols
}

func (r *rowsRecordSet) Next(context.Context) ([]types.Datum, error) {
	if r.idx >= len(r.rows) {
		return nil, nil
	}
	row := r.rows[r.idx]
	r.idx++
	return row, nil
}

func (r *rowsRecordSet) Close() error {
	if !r.closed {
		r.closed = true
		r.open.Dec()
	}
	return nil
}

// MockProtocol records partial result sets ended by handler activation.
type MockProtocol struct {
	Partial bool
	Ended   int
}

// HasPartialResultSet implements sp.Protocol interface.
func (p *MockProtocol) HasPartialResultSet() bool {
	return p.Partial
}

// EndPartialResultSet implements sp.Protocol interface.
func (p *MockProtocol) EndPartialResultSet() {
	p.Partial = false
	p.Ended++
}
