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

// optimize removes the instructions that cannot be reached from the entry
// point, after redirecting jumps that land on another jump to the final
// destination. Every destination is renumbered.
func optimize(instrs []Instruction) []Instruction {
	if len(instrs) == 0 {
		return instrs
	}
	marked := make([]bool, len(instrs))
	work := []int{0}
	for len(work) > 0 {
		ip := work[len(work)-1]
		work = work[:len(work)-1]
		if ip >= len(instrs) || marked[ip] {
			continue
		}
		marked[ip] = true
		work = append(work, successors(instrs, instrs[ip])...)
	}

	newIP := make([]int, len(instrs)+1)
	n := 0
	for i := range instrs {
		newIP[i] = n
		if marked[i] {
			n++
		}
	}
	newIP[len(instrs)] = n

	out := make([]Instruction, 0, n)
	for i, instr := range instrs {
		if !marked[i] {
			continue
		}
		b := instr.base()
		b.ip = newIP[i]
		if j, ok := instr.(Jump); ok {
			j.SetDest(newIP[j.Dest()])
		}
		if c, ok := instr.(Continuable); ok {
			c.SetContDest(newIP[c.ContDest()])
		}
		out = append(out, instr)
	}
	return out
}

// successors returns the instructions control may pass to after instr,
// shortcutting jump chains on the way.
func successors(instrs []Instruction, instr Instruction) []int {
	ip := instr.IP()
	switch x := instr.(type) {
	case *JumpInstr:
		x.SetDest(shortcut(instrs, x.Dest()))
		return []int{x.Dest()}
	case *JumpIfNotInstr:
		x.SetDest(shortcut(instrs, x.Dest()))
		x.SetContDest(shortcut(instrs, x.ContDest()))
		return []int{x.Dest(), ip + 1, x.ContDest()}
	case *JumpCaseWhenInstr:
		x.SetDest(shortcut(instrs, x.Dest()))
		x.SetContDest(shortcut(instrs, x.ContDest()))
		return []int{x.Dest(), ip + 1, x.ContDest()}
	case *SetCaseExprInstr:
		x.SetContDest(shortcut(instrs, x.ContDest()))
		return []int{ip + 1, x.ContDest()}
	case *HPushJumpInstr:
		return []int{x.Dest(), ip + 1}
	case *HReturnInstr:
		if x.Handler.Type == HandlerExit {
			return []int{x.Dest()}
		}
		// A CONTINUE handler resumes where the caught instruction said.
		return nil
	}
	return []int{ip + 1}
}

// shortcut follows unconditional jumps starting at dest.
func shortcut(instrs []Instruction, dest int) int {
	seen := make(map[int]struct{})
	for dest < len(instrs) {
		j, ok := instrs[dest].(*JumpInstr)
		if !ok {
			break
		}
		if _, loop := seen[dest]; loop {
			break
		}
		seen[dest] = struct{}{}
		dest = j.Dest()
	}
	return dest
}
