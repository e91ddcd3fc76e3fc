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
	"github.com/pingcap/tidb-routine/pkg/util/logutil"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ActionOnExceed is run by a tracker whose limit was crossed. It must be
// safe for concurrent use.
type ActionOnExceed interface {
	Action(t *Tracker)
}

// LogOnExceed warns once per connection that its routines went over
// quota. The charge itself is refused or kept by the caller.
type LogOnExceed struct {
	ConnID uint64
	acted  atomic.Bool
}

// Action implements ActionOnExceed interface.
func (a *LogOnExceed) Action(t *Tracker) {
	if !a.acted.CompareAndSwap(false, true) {
		return
	}
	logutil.BgLogger().Warn("routine memory exceeds quota",
		zap.Uint64("conn", a.ConnID),
		zap.Int64("consumed", t.BytesConsumed()),
		zap.Int64("quota", t.BytesLimit()),
		zap.String("trackers", t.String()))
}

// Acted reports whether the warning was written.
func (a *LogOnExceed) Acted() bool {
	return a.acted.Load()
}
