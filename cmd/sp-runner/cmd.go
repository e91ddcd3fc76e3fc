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

package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cheynewallace/tabby"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb-routine/pkg/config"
	"github.com/pingcap/tidb-routine/pkg/sp"
	"github.com/pingcap/tidb-routine/pkg/sp/compile"
	"github.com/pingcap/tidb-routine/pkg/sp/spcache"
	"github.com/pingcap/tidb-routine/pkg/types"
	"github.com/pingcap/tidb-routine/pkg/util/logutil"
	"github.com/pingcap/tidb-routine/pkg/util/sqlexec"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	// FlagConfig is the name of config flag.
	FlagConfig = "config"
	// FlagFile is the name of the routine file flag.
	FlagFile = "file"
	// FlagLogLevel is the name of log-level flag.
	FlagLogLevel = "log-level"
	// FlagDSN is the name of dsn flag.
	FlagDSN = "dsn"

	flagName     = "name"
	flagArgs     = "args"
	flagFunction = "function"
	flagDryRun   = "dry-run"
)

// openDB opens the server connection pool, replaced in tests.
var openDB = sqlexec.OpenDB

// AddFlags adds the flags shared by every command.
func AddFlags(cmd *cobra.Command) {
	DefineCommonFlags(cmd.PersistentFlags())
}

// DefineCommonFlags defines the flags that locate routines and configure the
// session they run in.
func DefineCommonFlags(flags *pflag.FlagSet) {
	flags.StringP(FlagConfig, "C", "", "Set the path of the config file")
	flags.StringP(FlagFile, "f", "", "Set the path of the TOML or YAML file holding routine definitions")
	flags.StringP(FlagLogLevel, "L", "", "Set the log level, overriding the config file")
	flags.String(FlagDSN, "", "Set the DSN of the server statements run on, overriding the config file")
}

func defineRoutineFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP(flagName, "n", "", "Name of the routine")
	flags.Bool(flagFunction, false, "Look the name up among stored functions instead of procedures")
	_ = cmd.MarkFlagRequired(flagName)
}

// runner holds what every command needs once flags are parsed.
type runner struct {
	cfg *config.Config
	lib *compile.Library
}

func newRunner(cmd *cobra.Command) (*runner, error) {
	flags := cmd.Flags()
	cfg := config.NewConfig()
	if path, _ := flags.GetString(FlagConfig); path != "" {
		if err := cfg.Load(path); err != nil {
			return nil, err
		}
	}
	if level, _ := flags.GetString(FlagLogLevel); level != "" {
		cfg.Log.Level = level
	}
	if dsn, _ := flags.GetString(FlagDSN); dsn != "" {
		cfg.Executor.DSN = dsn
	}
	if err := cfg.Valid(); err != nil {
		return nil, errors.Annotate(err, "invalid config")
	}
	if err := logutil.InitLogger(cfg.Log.ToLogConfig()); err != nil {
		return nil, errors.Annotate(err, "init logger")
	}
	config.StoreGlobalConfig(cfg)

	file, _ := flags.GetString(FlagFile)
	if file == "" {
		return nil, errors.Errorf("--%s is required", FlagFile)
	}
	lib, err := compile.LoadLibrary(file)
	if err != nil {
		return nil, errors.Annotatef(err, "load routines from %s", file)
	}
	logutil.BgLogger().Info("routines loaded", zap.String("file", file), zap.Int("count", len(lib.Routines())))
	return &runner{cfg: cfg, lib: lib}, nil
}

func routineType(cmd *cobra.Command) sp.RoutineType {
	if fn, _ := cmd.Flags().GetBool(flagFunction); fn {
		return sp.TypeFunction
	}
	return sp.TypeProcedure
}

func (r *runner) routine(ctx context.Context, resolver sp.RoutineResolver, tp sp.RoutineType, name string) (*sp.Routine, error) {
	routine, err := resolver.GetRoutine(ctx, tp, name)
	if err != nil {
		return nil, err
	}
	if routine == nil {
		return nil, sp.ErrSpDoesNotExist.GenWithStackByArgs(tp.String(), name)
	}
	return routine, nil
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list the routines of the routine file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newRunner(cmd)
			if err != nil {
				return err
			}
			t := tabby.NewCustom(tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0))
			t.AddHeader("TYPE", "NAME", "PARAMETERS", "RETURNS")
			for _, routine := range r.lib.Routines() {
				params := make([]string, 0)
				for _, p := range routine.PContext().Params() {
					params = append(params, p.Mode.String()+" "+p.Name+" "+types.TypeString(p.Type))
				}
				returns := ""
				if ret := routine.Returns(); ret != nil {
					returns = types.TypeString(ret)
				}
				t.AddLine(routine.Type(), routine.Name(), strings.Join(params, ", "), returns)
			}
			t.Print()
			return nil
		},
	}
}

func newShowCodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show-code",
		Short: "print the instructions a routine compiles to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newRunner(cmd)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString(flagName)
			routine, err := r.routine(cmd.Context(), r.lib, routineType(cmd), name)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), routine.ShowCode())
			return errors.Trace(err)
		},
	}
	defineRoutineFlags(cmd)
	return cmd
}

func newCallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call",
		Short: "execute a stored procedure or function",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newRunner(cmd)
			if err != nil {
				return err
			}
			return r.call(cmd)
		},
	}
	defineRoutineFlags(cmd)
	cmd.Flags().StringSliceP(flagArgs, "a", nil, "Comma separated argument values, NULL for a null value")
	cmd.Flags().Bool(flagDryRun, false, "Print the statements instead of sending them to the server")
	return cmd
}

func (r *runner) call(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	name, _ := cmd.Flags().GetString(flagName)
	rawArgs, _ := cmd.Flags().GetStringSlice(flagArgs)
	dryRun, _ := cmd.Flags().GetBool(flagDryRun)

	var executor sp.StmtExecutor
	if dryRun {
		executor = sqlexec.NewDryRunExecutor(out)
	} else {
		if r.cfg.Executor.DSN == "" {
			return errors.Errorf("--%s or executor.dsn is required unless --%s is set", FlagDSN, flagDryRun)
		}
		db, err := openDB(ctx, r.cfg.Executor)
		if err != nil {
			return err
		}
		defer func() {
			_ = db.Close()
		}()
		remote, err := newRemoteExecutor(ctx, db, out)
		if err != nil {
			return err
		}
		defer func() {
			_ = remote.Close()
		}()
		executor = remote
	}

	cache := spcache.NewWithConfig(r.lib, r.cfg)
	cache.Start()
	defer cache.Stop()
	sess := sp.NewSession(executor, cache, sp.WithConfig(r.cfg))

	tp := routineType(cmd)
	routine, err := r.routine(ctx, cache, tp, name)
	if err != nil {
		return err
	}
	values := make([]types.Datum, len(rawArgs))
	for i, raw := range rawArgs {
		values[i] = parseArg(raw)
	}

	if tp == sp.TypeFunction {
		d, err := sess.CallFunction(ctx, routine, values)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, formatDatum(d))
		printConditions(out, sess)
		return nil
	}

	params := routine.PContext().Params()
	outs := make([]*types.Datum, len(values))
	args := make([]sp.Arg, len(values))
	for i := range values {
		i := i
		args[i].Value = values[i]
		if i < len(params) && params[i].Mode != sp.ParamIn {
			args[i].Out = func(d types.Datum) error {
				outs[i] = &d
				return nil
			}
		}
	}
	if err := sess.CallProcedure(ctx, routine, args); err != nil {
		return err
	}
	for i, d := range outs {
		if d != nil {
			fmt.Fprintf(out, "%s = %s\n", params[i].Name, formatDatum(*d))
		}
	}
	printConditions(out, sess)
	return nil
}

func newRemoteExecutor(ctx context.Context, db *sql.DB, out io.Writer) (*sqlexec.RemoteExecutor, error) {
	var header string
	return sqlexec.NewRemoteExecutor(ctx, db, func(columns []string, row []types.Datum) error {
		if h := strings.Join(columns, "\t"); h != header {
			header = h
			fmt.Fprintln(out, h)
		}
		values := make([]string, 0, len(row))
		for _, d := range row {
			values = append(values, formatDatum(d))
		}
		_, err := fmt.Fprintln(out, strings.Join(values, "\t"))
		return errors.Trace(err)
	})
}

func printConditions(out io.Writer, sess *sp.Session) {
	for _, cond := range sess.Diagnostics().Conditions() {
		fmt.Fprintln(out, cond.String())
	}
}

// parseArg reads a command line argument as an integer, a float, NULL or
// else a string.
func parseArg(raw string) types.Datum {
	if strings.EqualFold(raw, "null") {
		return types.Datum{}
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return types.NewIntDatum(v)
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return types.NewFloat64Datum(v)
	}
	return types.NewStringDatum(raw)
}

func formatDatum(d types.Datum) string {
	if d.IsNull() {
		return "NULL"
	}
	s, err := d.ToString()
	if err != nil {
		return fmt.Sprintf("%v", d.GetValue())
	}
	return s
}
