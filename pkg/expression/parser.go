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

package expression

import (
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/parser"
	"github.com/pingcap/parser/ast"
	_ "github.com/pingcap/parser/test_driver" // literal values
	"github.com/pingcap/tidb-routine/pkg/errno"
	"github.com/pingcap/tidb-routine/pkg/util/dbterror"
	"github.com/pingcap/tidb-routine/pkg/util/syncutil"
)

// ErrParse is returned when a routine expression is not a single scalar
// expression.
var ErrParse = dbterror.ClassParser.NewStd(errno.ErrParse)

// Parser parses the SQL fragments of a routine body. It is safe for
// concurrent use; the underlying parser is not.
type Parser struct {
	mu syncutil.Mutex
	p  *parser.Parser
}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{p: parser.New()}
}

// ParseStmt parses a single SQL statement.
func (p *Parser) ParseStmt(text string) (ast.StmtNode, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stmt, err := p.p.ParseOneStmt(text, "", "")
	if err != nil {
		return nil, errors.Trace(err)
	}
	return stmt, nil
}

// ParseExpr parses a scalar expression and resolves its identifiers with r.
func (p *Parser) ParseExpr(text string, r Resolver) (Expression, error) {
	exprs, err := p.parseExprs(text, r)
	if err != nil {
		return nil, err
	}
	if len(exprs) != 1 {
		return nil, ErrParse.GenWithStackByArgs("You have an error in your SQL syntax;", "expected a scalar expression near '"+text+"'")
	}
	return exprs[0], nil
}

// ParseExprList parses a comma separated list of scalar expressions. An
// empty text is an empty list.
func (p *Parser) ParseExprList(text string, r Resolver) ([]Expression, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return p.parseExprs(text, r)
}

func (p *Parser) parseExprs(text string, r Resolver) ([]Expression, error) {
	stmt, err := p.ParseStmt("SELECT " + text)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*ast.SelectStmt)
	if !ok || sel.From != nil || sel.Where != nil || sel.GroupBy != nil || sel.Having != nil ||
		sel.OrderBy != nil || sel.Limit != nil {
		return nil, ErrParse.GenWithStackByArgs("You have an error in your SQL syntax;", "expected a scalar expression near '"+text+"'")
	}
	exprs := make([]Expression, 0, len(sel.Fields.Fields))
	for _, field := range sel.Fields.Fields {
		if field.Expr == nil {
			return nil, ErrParse.GenWithStackByArgs("You have an error in your SQL syntax;", "expected a scalar expression near '"+text+"'")
		}
		expr, err := BuildExpression(field.Expr, r)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	return exprs, nil
}
