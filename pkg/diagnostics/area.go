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

package diagnostics

// DefaultMaxConditions is the default number of conditions an area retains,
// the default of max_error_count.
const DefaultMaxConditions = 64

type entry struct {
	cond        *SQLCondition
	preexisting bool
}

// Area is a diagnostics area: the error status of the running statement and
// the list of conditions raised so far.
//
// Area is not safe for concurrent use. It belongs to one session.
type Area struct {
	entries []entry
	// errStatus is set while a statement has failed and no handler has
	// cleared the failure yet.
	errStatus *SQLCondition
	// errRetained is false when the error did not fit in the list.
	errRetained    bool
	stmtCondCount  int
	maxConditions  int
	warningCount   int
	droppedEntries int
}

// NewArea creates an area retaining at most maxConditions conditions.
func NewArea(maxConditions int) *Area {
	if maxConditions <= 0 {
		maxConditions = DefaultMaxConditions
	}
	return &Area{maxConditions: maxConditions}
}

func (a *Area) push(c *SQLCondition, preexisting bool) bool {
	a.stmtCondCount++
	if c.Level != LevelError {
		a.warningCount++
	}
	if len(a.entries) >= a.maxConditions {
		a.droppedEntries++
		return false
	}
	a.entries = append(a.entries, entry{cond: c, preexisting: preexisting})
	return true
}

// PushCondition appends a condition to the list. An Error-level condition
// also sets the error status.
func (a *Area) PushCondition(c *SQLCondition) {
	retained := a.push(c, false)
	if c.Level == LevelError {
		a.errStatus = c
		a.errRetained = retained
	}
}

// AppendWarning appends a warning condition for err.
func (a *Area) AppendWarning(err error) {
	a.PushCondition(ConditionFromError(LevelWarning, err))
}

// AppendNote appends a note condition for err.
func (a *Area) AppendNote(err error) {
	a.PushCondition(ConditionFromError(LevelNote, err))
}

// SetError records err as the failure of the running statement.
func (a *Area) SetError(err error) *SQLCondition {
	c := ConditionFromError(LevelError, err)
	a.PushCondition(c)
	return c
}

// IsError reports whether the area holds an error status.
func (a *Area) IsError() bool {
	return a.errStatus != nil
}

// ErrorStatus returns the error status, or nil.
func (a *Area) ErrorStatus() *SQLCondition {
	return a.errStatus
}

// ErrorCondition returns the condition in the list that corresponds to the
// error status. It is nil when there is no error or the list was full.
func (a *Area) ErrorCondition() *SQLCondition {
	if a.errStatus == nil || !a.errRetained {
		return nil
	}
	return a.errStatus
}

// ClearError clears the error status but keeps the condition list.
func (a *Area) ClearError() {
	a.errStatus = nil
	a.errRetained = false
}

// Conditions returns the retained conditions in raise order.
func (a *Area) Conditions() []*SQLCondition {
	conds := make([]*SQLCondition, 0, len(a.entries))
	for _, e := range a.entries {
		conds = append(conds, e.cond)
	}
	return conds
}

// StatementConditions returns the retained conditions raised since the last
// ResetStatementConditionCount, in raise order, skipping preexisting ones.
func (a *Area) StatementConditions() []*SQLCondition {
	n := a.stmtCondCount
	if n > len(a.entries) {
		n = len(a.entries)
	}
	conds := make([]*SQLCondition, 0, n)
	for _, e := range a.entries[len(a.entries)-n:] {
		if !e.preexisting {
			conds = append(conds, e.cond)
		}
	}
	return conds
}

// StatementConditionCount returns the number of conditions raised since the
// last ResetStatementConditionCount.
func (a *Area) StatementConditionCount() int {
	return a.stmtCondCount
}

// ResetStatementConditionCount starts a new statement for counting purposes.
func (a *Area) ResetStatementConditionCount() {
	a.stmtCondCount = 0
}

// ResetConditions drops the condition list, keeping the error status.
func (a *Area) ResetConditions() {
	a.entries = a.entries[:0]
	a.errRetained = false
	a.warningCount = 0
	a.droppedEntries = 0
}

// Reset prepares the area for a new top-level statement.
func (a *Area) Reset() {
	a.ResetConditions()
	a.ClearError()
	a.stmtCondCount = 0
}

// WarningCount returns the number of non-error conditions raised, including
// those that did not fit in the list.
func (a *Area) WarningCount() int {
	return a.warningCount
}

// PushPreexisting appends a copy of c marked as raised before the area
// became current. Preexisting conditions never reach the parent area.
func (a *Area) PushPreexisting(c *SQLCondition) {
	a.entries = append(a.entries, entry{cond: c.Clone(), preexisting: true})
}

// NewConditions returns the conditions that are not preexisting.
func (a *Area) NewConditions() []*SQLCondition {
	var conds []*SQLCondition
	for _, e := range a.entries {
		if !e.preexisting {
			conds = append(conds, e.cond)
		}
	}
	return conds
}

// CopyNewConditions appends the non-preexisting conditions of from. The
// error status is not copied.
func (a *Area) CopyNewConditions(from *Area) {
	for _, c := range from.NewConditions() {
		a.push(c, false)
	}
}

// MergeNested ends a nested area that was left without a normal return:
// its new conditions are appended and its error status, if any, becomes the
// status of a.
func (a *Area) MergeNested(from *Area) {
	a.CopyNewConditions(from)
	if from.errStatus == nil {
		return
	}
	a.errStatus, a.errRetained = from.errStatus, false
	for _, e := range a.entries {
		if e.cond == from.errStatus {
			a.errRetained = true
			break
		}
	}
}
