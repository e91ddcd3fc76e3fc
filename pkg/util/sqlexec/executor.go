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

// Package sqlexec runs the statements of stored routines outside the engine.
package sqlexec

import (
	"context"
	"database/sql"

	"github.com/go-sql-driver/mysql"
	"github.com/pingcap/errors"
	"github.com/pingcap/parser/ast"
	"github.com/pingcap/tidb-routine/pkg/config"
	"github.com/pingcap/tidb-routine/pkg/errno"
	"github.com/pingcap/tidb-routine/pkg/sp"
	"github.com/pingcap/tidb-routine/pkg/types"
	"github.com/pingcap/tidb-routine/pkg/util/logutil"
	"go.uber.org/zap"
)

// RowSink receives the rows of statements that return a result set to the
// client, such as a bare SELECT in a procedure body.
type RowSink func(columns []string, row []types.Datum) error

// OpenDB opens a connection pool to the server described by cfg.
func OpenDB(ctx context.Context, cfg config.Executor) (*sql.DB, error) {
	dsnCfg, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errors.Annotate(err, "parse executor dsn")
	}
	// Routine statements are sent as text; no server-side prepare.
	dsnCfg.InterpolateParams = true
	connector, err := mysql.NewConnector(dsnCfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Trace(err)
	}
	return db, nil
}

// RemoteExecutor is a sp.StmtExecutor that forwards statements to a
// MySQL-compatible server. Every statement of a session runs on one pinned
// connection, so transactions and session variables carry over.
type RemoteExecutor struct {
	conn *sql.Conn
	sink RowSink
}

// NewRemoteExecutor takes a connection from db.
func NewRemoteExecutor(ctx context.Context, db *sql.DB, sink RowSink) (*RemoteExecutor, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &RemoteExecutor{conn: conn, sink: sink}, nil
}

// Close returns the connection to the pool.
func (e *RemoteExecutor) Close() error {
	return errors.Trace(e.conn.Close())
}

// ExecStmt implements sp.StmtExecutor interface.
func (e *RemoteExecutor) ExecStmt(ctx context.Context, sess *sp.Session, stmt *sp.Stmt) error {
	if returnsRows(stmt.Node) {
		return e.forwardRows(ctx, sess, stmt)
	}
	res, err := e.conn.ExecContext(ctx, stmt.Text)
	if err != nil {
		return convertError(sess, err)
	}
	if affected, err := res.RowsAffected(); err == nil {
		logutil.Logger(ctx).Debug("routine statement executed",
			zap.String("sql", logutil.QueryText(stmt.Text)),
			zap.Int64("affected", affected))
	}
	return nil
}

func (e *RemoteExecutor) forwardRows(ctx context.Context, sess *sp.Session, stmt *sp.Stmt) error {
	rs, err := e.query(ctx, sess, stmt)
	if err != nil {
		return err
	}
	defer rs.Close()
	for {
		row, err := rs.Next(ctx)
		if err != nil || row == nil {
			return err
		}
		if e.sink == nil {
			continue
		}
		if err := e.sink(rs.names, row); err != nil {
			return err
		}
	}
}

// Query implements sp.StmtExecutor interface. The result set is read to
// the end before Query returns: the pinned connection carries one result
// set at a time and the statements of a FETCH loop run while the cursor is
// open. The buffered rows are charged to the session memory tracker.
func (e *RemoteExecutor) Query(ctx context.Context, sess *sp.Session, stmt *sp.Stmt) (sp.RecordSet, error) {
	rs, err := e.query(ctx, sess, stmt)
	if err != nil {
		return nil, err
	}
	buf := newBufferedRecordSet(len(rs.names), sess.MemoryTracker())
	err = buf.fill(ctx, rs)
	if closeErr := rs.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = buf.Close()
		return nil, err
	}
	return buf, nil
}

func (e *RemoteExecutor) query(ctx context.Context, sess *sp.Session, stmt *sp.Stmt) (*recordSet, error) {
	rows, err := e.conn.QueryContext(ctx, stmt.Text)
	if err != nil {
		return nil, convertError(sess, err)
	}
	names, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, errors.Trace(err)
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		_ = rows.Close()
		return nil, errors.Trace(err)
	}
	return &recordSet{rows: rows, names: names, types: colTypes}, nil
}

func returnsRows(node ast.StmtNode) bool {
	switch node.(type) {
	case *ast.SelectStmt, *ast.SetOprStmt, *ast.ShowStmt, *ast.ExplainStmt:
		return true
	}
	return false
}

// convertError reports a server side "prepared statement needs to be
// re-prepared" error as a metadata change of the running statement.
func convertError(sess *sp.Session, err error) error {
	if myErr, ok := errors.Cause(err).(*mysql.MySQLError); ok && myErr.Number == errno.ErrNeedReprepare {
		if reprepare := sess.ReportMetadataChange(); reprepare != nil {
			return reprepare
		}
	}
	return errors.Trace(err)
}
