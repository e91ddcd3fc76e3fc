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

	"github.com/pingcap/failpoint"
	"github.com/pingcap/parser/ast"
	"github.com/pingcap/tidb-routine/pkg/errno"
	"github.com/pingcap/tidb-routine/pkg/expression"
	"github.com/pingcap/tidb-routine/pkg/metrics"
	"github.com/pingcap/tidb-routine/pkg/util/logutil"
	"github.com/pingcap/tidb-routine/pkg/util/syncutil"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type lexKind int

const (
	lexExpr lexKind = iota
	lexExprList
	lexStmt
	lexCaseWhen
)

// parsedTree is one parse of the source text of an instruction. A tree is
// never modified after it is built; re-preparation replaces it.
type parsedTree struct {
	expr  expression.Expression
	exprs []expression.Expression
	stmt  ast.StmtNode

	kind             string
	fragile          bool
	keepsDiagnostics bool
	hasVarRefs       bool

	firstExec atomic.Bool
}

// lexKeeper owns the source text of an instruction and its cached parse
// tree. The tree is shared by every invocation of the routine; the mutex
// only guards swapping it, never its execution.
type lexKeeper struct {
	text    string
	kind    lexKind
	caseIdx int
	scope   *PContext
	parser  *expression.Parser

	mu   syncutil.Mutex
	tree *parsedTree
}

func newLexKeeper(kind lexKind, text string, scope *PContext, parser *expression.Parser) *lexKeeper {
	return &lexKeeper{text: text, kind: kind, scope: scope, parser: parser}
}

func (lk *lexKeeper) parse() (*parsedTree, error) {
	t := &parsedTree{fragile: true}
	switch lk.kind {
	case lexStmt:
		stmt, err := lk.parser.ParseStmt(lk.text)
		if err != nil {
			return nil, err
		}
		t.stmt = stmt
		t.kind, t.fragile, t.keepsDiagnostics = classifyStmt(stmt)
		t.hasVarRefs = hasVarRefs(stmt, lk.scope)
	case lexExprList:
		exprs, err := lk.parser.ParseExprList(lk.text, lk.scope)
		if err != nil {
			return nil, err
		}
		t.exprs = exprs
	case lexCaseWhen:
		when, err := lk.parser.ParseExpr(lk.text, lk.scope)
		if err != nil {
			return nil, err
		}
		t.expr, err = expression.NewFunction("eq", &expression.CaseOperand{Idx: lk.caseIdx}, when)
		if err != nil {
			return nil, err
		}
	default:
		expr, err := lk.parser.ParseExpr(lk.text, lk.scope)
		if err != nil {
			return nil, err
		}
		t.expr = expr
	}
	t.firstExec.Store(true)
	return t, nil
}

// acquire returns the cached tree, parsing the text when there is none.
func (lk *lexKeeper) acquire() (*parsedTree, error) {
	lk.mu.Lock()
	t := lk.tree
	lk.mu.Unlock()
	if t != nil {
		return t, nil
	}
	t, err := lk.parse()
	if err != nil {
		return nil, err
	}
	lk.mu.Lock()
	defer lk.mu.Unlock()
	if lk.tree == nil {
		lk.tree = t
	}
	return lk.tree, nil
}

// invalidate drops t if it is still the cached tree.
func (lk *lexKeeper) invalidate(t *parsedTree) {
	lk.mu.Lock()
	if lk.tree == t {
		lk.tree = nil
	}
	lk.mu.Unlock()
}

func (lk *lexKeeper) exprString() string {
	lk.mu.Lock()
	t := lk.tree
	lk.mu.Unlock()
	switch {
	case t == nil:
		return lk.text
	case t.expr != nil:
		return t.expr.String()
	case lk.kind == lexExprList:
		strs := make([]string, 0, len(t.exprs))
		for _, e := range t.exprs {
			strs = append(strs, e.String())
		}
		return strings.Join(strs, ", ")
	}
	return lk.text
}

// execute runs fn on the parse tree. When the statement executor reports
// that metadata the tree depends on changed while fn ran, the tree is
// discarded, the text parsed again and fn retried, up to
// routine.max-reprepare-attempts times. The first execution of a fresh tree
// cannot be stale yet: it runs under an empty observer slot, which also
// hides the observers of the enclosing statements.
func (lk *lexKeeper) execute(ctx context.Context, ec *ExecContext, fn func(t *parsedTree) error) error {
	sess := ec.sess
	for attempt := 0; ; attempt++ {
		t, err := lk.acquire()
		if err != nil {
			return err
		}
		var obs *reprepareObserver
		if t.fragile && (!t.firstExec.Load() || attempt > 0) {
			obs = &reprepareObserver{}
		}
		sess.pushObserver(obs)
		failpoint.Inject("markTreeStale", func() {
			if obs != nil {
				obs.invalidated = true
			}
		})
		err = fn(t)
		t.firstExec.Store(false)
		sess.popObserver()
		if err == nil {
			if attempt > 0 {
				metrics.ReprepareCounter.WithLabelValues(metrics.LblOK).Inc()
			}
			return nil
		}
		if obs == nil || !obs.invalidated || errCode(err) != errno.ErrNeedReprepare || sess.isFatalOrKilled(ctx) {
			return err
		}
		if attempt >= sess.cfg.Routine.MaxReprepareAttempts {
			metrics.ReprepareCounter.WithLabelValues(metrics.LblGiveUp).Inc()
			logutil.Logger(ctx).Warn("give up re-preparing routine statement",
				zap.Int("attempts", attempt+1),
				zap.String("sql", logutil.QueryText(lk.text)))
			return err
		}
		metrics.ReprepareCounter.WithLabelValues(metrics.LblRetry).Inc()
		logutil.Logger(ctx).Info("re-prepare routine statement",
			zap.Int("attempt", attempt+1),
			zap.String("sql", logutil.QueryText(lk.text)))
		lk.invalidate(t)
		sess.diag.Current().ClearError()
	}
}

// reprepareObserver records that the statement executor found the running
// tree stale.
type reprepareObserver struct {
	invalidated bool
}

// classifyStmt returns the keyword of stmt, whether executing it depends on
// table metadata that a concurrent DDL may change, and whether it reads the
// diagnostics of the previous statement.
func classifyStmt(stmt ast.StmtNode) (kind string, fragile, keepsDiagnostics bool) {
	switch x := stmt.(type) {
	case *ast.SelectStmt, *ast.SetOprStmt:
		return "select", true, false
	case *ast.InsertStmt:
		if x.IsReplace {
			return "replace", true, false
		}
		return "insert", true, false
	case *ast.UpdateStmt:
		return "update", true, false
	case *ast.DeleteStmt:
		return "delete", true, false
	case *ast.ShowStmt:
		return "show", false, x.Tp == ast.ShowWarnings || x.Tp == ast.ShowErrors
	case *ast.SetStmt:
		return "set", false, false
	case *ast.BeginStmt:
		return "begin", false, false
	case *ast.CommitStmt:
		return "commit", false, false
	case *ast.RollbackStmt:
		return "rollback", false, false
	case ast.DDLNode:
		return "ddl", false, false
	}
	return "other", false, false
}
