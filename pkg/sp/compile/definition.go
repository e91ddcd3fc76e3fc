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

package compile

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	"gopkg.in/yaml.v2"
)

// Routine is the definition of a stored routine.
type Routine struct {
	Type    string  `toml:"type" json:"type" yaml:"type"`
	Name    string  `toml:"name" json:"name" yaml:"name"`
	Params  []Param `toml:"param" json:"param" yaml:"param"`
	Returns string  `toml:"returns" json:"returns" yaml:"returns"`
	Body    []*Stmt `toml:"body" json:"body" yaml:"body"`
}

// Param is a routine parameter. Mode is IN, OUT or INOUT; empty means IN.
type Param struct {
	Name string `toml:"name" json:"name" yaml:"name"`
	Type string `toml:"type" json:"type" yaml:"type"`
	Mode string `toml:"mode" json:"mode" yaml:"mode"`
}

// Stmt is a statement of a routine body. Kind selects the statement and the
// fields it reads:
//
//	block      Label, Body
//	declare    Names (or Name), Type, Default
//	condition  Name, State or Code
//	cursor     Name, SQL
//	handler    Handler (exit|continue), Conditions, Body
//	set        Name (NEW.col in triggers), Expr
//	sql        SQL
//	if         Cond, Then, ElseIfs, Else
//	case       Value (simple case only), Whens, Else
//	while      Label, Cond, Body
//	repeat     Label, Body, Cond (the UNTIL condition)
//	loop       Label, Body
//	leave      Target
//	iterate    Target
//	open       Cursor
//	fetch      Cursor, Into
//	close      Cursor
//	return     Expr
//	signal     State or Name, Code, Message
//	call       Name, Args
type Stmt struct {
	Kind       string    `toml:"kind" json:"kind" yaml:"kind"`
	Label      string    `toml:"label" json:"label" yaml:"label"`
	Name       string    `toml:"name" json:"name" yaml:"name"`
	Names      []string  `toml:"names" json:"names" yaml:"names"`
	Type       string    `toml:"type" json:"type" yaml:"type"`
	Default    string    `toml:"default" json:"default" yaml:"default"`
	Expr       string    `toml:"expr" json:"expr" yaml:"expr"`
	SQL        string    `toml:"sql" json:"sql" yaml:"sql"`
	Handler    string    `toml:"handler" json:"handler" yaml:"handler"`
	Conditions []string  `toml:"conditions" json:"conditions" yaml:"conditions"`
	Body       []*Stmt   `toml:"body" json:"body" yaml:"body"`
	Cond       string    `toml:"cond" json:"cond" yaml:"cond"`
	Then       []*Stmt   `toml:"then" json:"then" yaml:"then"`
	ElseIfs    []*ElseIf `toml:"elseif" json:"elseif" yaml:"elseif"`
	Else       []*Stmt   `toml:"else" json:"else" yaml:"else"`
	Value      string    `toml:"value" json:"value" yaml:"value"`
	Whens      []*When   `toml:"when" json:"when" yaml:"when"`
	Cursor     string    `toml:"cursor" json:"cursor" yaml:"cursor"`
	Into       []string  `toml:"into" json:"into" yaml:"into"`
	Args       string    `toml:"args" json:"args" yaml:"args"`
	State      string    `toml:"state" json:"state" yaml:"state"`
	Code       uint16    `toml:"code" json:"code" yaml:"code"`
	Message    string    `toml:"message" json:"message" yaml:"message"`
	Target     string    `toml:"target" json:"target" yaml:"target"`
}

// ElseIf is an ELSEIF branch.
type ElseIf struct {
	Cond string  `toml:"cond" json:"cond" yaml:"cond"`
	Then []*Stmt `toml:"then" json:"then" yaml:"then"`
}

// When is a WHEN branch of a CASE statement.
type When struct {
	Expr string  `toml:"expr" json:"expr" yaml:"expr"`
	Then []*Stmt `toml:"then" json:"then" yaml:"then"`
}

type file struct {
	Routines []*Routine `toml:"routine" yaml:"routine"`
}

// Decode decodes the routine definitions of a TOML document.
func Decode(data string) ([]*Routine, error) {
	var f file
	md, err := toml.Decode(data, &f)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("unknown routine definition keys %v", undecoded)
	}
	return f.Routines, nil
}

// DecodeYAML decodes the routine definitions of a YAML document. Keys are
// the same as in the TOML form.
func DecodeYAML(data []byte) ([]*Routine, error) {
	var f file
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, errors.Trace(err)
	}
	return f.Routines, nil
}

// LoadFile decodes the routine definitions of a file. Files ending in .yaml
// or .yml are YAML, anything else is TOML.
func LoadFile(path string) ([]*Routine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var routines []*Routine
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		routines, err = DecodeYAML(data)
	default:
		routines, err = Decode(string(data))
	}
	if err != nil {
		return nil, errors.Annotatef(err, "load %s", path)
	}
	return routines, nil
}
