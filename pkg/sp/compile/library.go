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
	"context"
	"slices"
	"strings"

	"github.com/pingcap/tidb-routine/pkg/sp"
	"github.com/pingcap/tidb-routine/pkg/sp/spcache"
	"github.com/pingcap/tidb-routine/pkg/util/syncutil"
)

// Library is an in-memory set of compiled routines, safe for concurrent use.
// Adding or dropping a routine bumps the global routine version, so session
// caches in front of the library drop what they hold.
type Library struct {
	mu       syncutil.RWMutex
	routines map[string]*sp.Routine
}

// NewLibrary creates a library holding routines.
func NewLibrary(routines ...*sp.Routine) *Library {
	l := &Library{routines: make(map[string]*sp.Routine, len(routines))}
	for _, r := range routines {
		l.routines[libraryKey(r.Type(), r.Name())] = r
	}
	return l
}

// LoadLibrary compiles every routine of a TOML file.
func LoadLibrary(path string) (*Library, error) {
	defs, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	routines, err := CompileAll(defs)
	if err != nil {
		return nil, err
	}
	return NewLibrary(routines...), nil
}

// CompileAll compiles defs, stopping at the first failure.
func CompileAll(defs []*Routine) ([]*sp.Routine, error) {
	routines := make([]*sp.Routine, 0, len(defs))
	for _, def := range defs {
		r, err := Compile(def)
		if err != nil {
			return nil, err
		}
		routines = append(routines, r)
	}
	return routines, nil
}

func libraryKey(tp sp.RoutineType, name string) string {
	return tp.String() + ":" + strings.ToLower(name)
}

// Add adds or replaces a routine.
func (l *Library) Add(r *sp.Routine) {
	l.mu.Lock()
	l.routines[libraryKey(r.Type(), r.Name())] = r
	l.mu.Unlock()
	spcache.InvalidateAll()
}

// Drop removes a routine and reports whether it existed.
func (l *Library) Drop(tp sp.RoutineType, name string) bool {
	key := libraryKey(tp, name)
	l.mu.Lock()
	_, ok := l.routines[key]
	delete(l.routines, key)
	l.mu.Unlock()
	if ok {
		spcache.InvalidateAll()
	}
	return ok
}

// GetRoutine implements sp.RoutineResolver interface. Unknown routines
// resolve to nil.
func (l *Library) GetRoutine(_ context.Context, tp sp.RoutineType, name string) (*sp.Routine, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.routines[libraryKey(tp, name)], nil
}

// Routines returns the routines sorted by type and name.
func (l *Library) Routines() []*sp.Routine {
	l.mu.RLock()
	routines := make([]*sp.Routine, 0, len(l.routines))
	for _, r := range l.routines {
		routines = append(routines, r)
	}
	l.mu.RUnlock()
	slices.SortFunc(routines, func(a, b *sp.Routine) int {
		if a.Type() != b.Type() {
			return int(a.Type()) - int(b.Type())
		}
		return strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	})
	return routines
}
