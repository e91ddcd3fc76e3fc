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

// Stack is the stack of diagnostics areas of a session. The top area is the
// current one; a new area is pushed when a condition handler starts running.
type Stack struct {
	areas         []*Area
	maxConditions int
}

// NewStack creates a stack holding one empty area.
func NewStack(maxConditions int) *Stack {
	return &Stack{
		areas:         []*Area{NewArea(maxConditions)},
		maxConditions: maxConditions,
	}
}

// Current returns the current area.
func (s *Stack) Current() *Area {
	return s.areas[len(s.areas)-1]
}

// Push pushes a new empty area and makes it current.
func (s *Stack) Push() *Area {
	a := NewArea(s.maxConditions)
	s.areas = append(s.areas, a)
	return a
}

// Pop removes the current area and returns it. The bottom area is never
// removed.
func (s *Stack) Pop() *Area {
	if len(s.areas) == 1 {
		return nil
	}
	a := s.areas[len(s.areas)-1]
	s.areas = s.areas[:len(s.areas)-1]
	return a
}

// Depth returns the number of areas.
func (s *Stack) Depth() int {
	return len(s.areas)
}
