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

package memory

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/pingcap/tidb-routine/pkg/util/syncutil"
	"go.uber.org/atomic"
)

// Tracker accounts the bytes held by a session, one routine invocation or
// one buffered cursor. Trackers form a tree: bytes consumed by a child are
// also consumed by every ancestor, and each level may carry its own limit.
//
// A tracker is created with NewTracker, optionally given an action with
// SetActionOnExceed, attached below its owner with AttachTo, charged with
// Consume or TryConsume and finally removed with Detach.
type Tracker struct {
	label int
	limit int64 // <= 0 means no limit

	consumed    atomic.Int64
	maxConsumed atomic.Int64
	parent      atomic.Pointer[Tracker]

	mu struct {
		syncutil.Mutex
		children []*Tracker
		action   ActionOnExceed
	}
}

// NewTracker creates a tracker. A limit <= 0 means no limit.
func NewTracker(label int, limit int64) *Tracker {
	return &Tracker{label: label, limit: limit}
}

// Label returns the label of t.
func (t *Tracker) Label() int {
	return t.label
}

// BytesLimit returns the limit of t, <= 0 when there is none.
func (t *Tracker) BytesLimit() int64 {
	return t.limit
}

// SetActionOnExceed sets what happens when a charge goes over the limit of
// t.
func (t *Tracker) SetActionOnExceed(a ActionOnExceed) {
	t.mu.Lock()
	t.mu.action = a
	t.mu.Unlock()
}

// AttachTo moves t below parent. The bytes t holds move with it.
func (t *Tracker) AttachTo(parent *Tracker) {
	t.Detach()
	parent.mu.Lock()
	parent.mu.children = append(parent.mu.children, t)
	parent.mu.Unlock()
	t.parent.Store(parent)
	parent.Consume(t.BytesConsumed())
}

// Detach removes t from its parent and gives its bytes back to the
// ancestors. t keeps its own count.
func (t *Tracker) Detach() {
	parent := t.parent.Swap(nil)
	if parent == nil {
		return
	}
	parent.mu.Lock()
	for i, child := range parent.mu.children {
		if child == t {
			parent.mu.children = append(parent.mu.children[:i], parent.mu.children[i+1:]...)
			break
		}
	}
	parent.mu.Unlock()
	parent.Consume(-t.BytesConsumed())
}

// Consume charges bytes to t and its ancestors; negative bytes release.
// The bytes are kept even when a limit is crossed, the action of the
// outermost tracker over its limit is run instead.
func (t *Tracker) Consume(bytes int64) {
	if exceeded := t.add(bytes); bytes > 0 && exceeded != nil {
		exceeded.onExceed()
	}
}

// TryConsume charges bytes only when no tracker on the path to the root
// goes over its limit. Otherwise nothing is charged, the action of the
// outermost offending tracker is run and that tracker is returned.
func (t *Tracker) TryConsume(bytes int64) *Tracker {
	exceeded := t.add(bytes)
	if bytes <= 0 || exceeded == nil {
		return nil
	}
	t.add(-bytes)
	exceeded.onExceed()
	return exceeded
}

func (t *Tracker) add(bytes int64) (exceeded *Tracker) {
	if bytes == 0 {
		return nil
	}
	for cur := t; cur != nil; cur = cur.parent.Load() {
		consumed := cur.consumed.Add(bytes)
		if cur.limit > 0 && consumed > cur.limit {
			exceeded = cur
		}
		for {
			peak := cur.maxConsumed.Load()
			if consumed <= peak || cur.maxConsumed.CompareAndSwap(peak, consumed) {
				break
			}
		}
	}
	return exceeded
}

func (t *Tracker) onExceed() {
	t.mu.Lock()
	a := t.mu.action
	t.mu.Unlock()
	if a != nil {
		a.Action(t)
	}
}

// BytesConsumed returns the bytes t currently holds.
func (t *Tracker) BytesConsumed() int64 {
	return t.consumed.Load()
}

// MaxConsumed returns the peak of BytesConsumed.
func (t *Tracker) MaxConsumed() int64 {
	return t.maxConsumed.Load()
}

// String renders the subtree of t, one tracker per line.
func (t *Tracker) String() string {
	var sb strings.Builder
	t.format(&sb, "")
	return sb.String()
}

func (t *Tracker) format(sb *strings.Builder, indent string) {
	fmt.Fprintf(sb, "%s%s consumed=%s", indent, labelName(t.label), units.BytesSize(float64(t.BytesConsumed())))
	if t.limit > 0 {
		fmt.Fprintf(sb, " quota=%s", units.BytesSize(float64(t.limit)))
	}
	sb.WriteByte('\n')
	t.mu.Lock()
	children := append([]*Tracker(nil), t.mu.children...)
	t.mu.Unlock()
	for _, child := range children {
		child.format(sb, indent+"  ")
	}
}

// Tracker labels.
const (
	LabelForSession     int = -1
	LabelForRoutineCall int = -2
	LabelForCursor      int = -3
)

func labelName(label int) string {
	switch label {
	case LabelForSession:
		return "session"
	case LabelForRoutineCall:
		return "routine"
	case LabelForCursor:
		return "cursor"
	}
	return strconv.Itoa(label)
}
