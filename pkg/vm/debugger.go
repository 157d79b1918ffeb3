// Package vm - debugger support
package vm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kristofer/brane/pkg/bytecode"
)

// Debugger provides interactive breakpoint/step debugging over a VM's
// dispatch loop. It reads the VM's live state directly (same package),
// so Show* methods always reflect the instruction about to execute, not
// the one that just ran.
type Debugger struct {
	vm          *VM          // the VM being debugged
	breakpoints map[int]bool // instruction offsets, within whichever chunk is executing, that pause execution
	stepMode    bool         // if true, pause before every instruction
	enabled     bool         // if false, ShouldPause never fires
}

// NewDebugger creates a debugger for vm and attaches it, so vm's dispatch
// loop will consult ShouldPause before every instruction.
func NewDebugger(vm *VM) *Debugger {
	d := &Debugger{vm: vm, breakpoints: make(map[int]bool)}
	vm.debugger = d
	return d
}

// Enable activates the debugger.
func (d *Debugger) Enable() {
	d.enabled = true
}

// Disable deactivates the debugger.
func (d *Debugger) Disable() {
	d.enabled = false
}

// SetStepMode enables or disables step mode.
// In step mode, execution pauses before each instruction.
func (d *Debugger) SetStepMode(enabled bool) {
	d.stepMode = enabled
}

// AddBreakpoint adds a breakpoint at the specified instruction offset.
func (d *Debugger) AddBreakpoint(ip int) {
	d.breakpoints[ip] = true
}

// RemoveBreakpoint removes a breakpoint at the specified instruction offset.
func (d *Debugger) RemoveBreakpoint(ip int) {
	delete(d.breakpoints, ip)
}

// ClearBreakpoints removes all breakpoints.
func (d *Debugger) ClearBreakpoints() {
	d.breakpoints = make(map[int]bool)
}

// ShouldPause checks if execution should pause at the current instruction.
// Returns true if we're in step mode or at a breakpoint.
func (d *Debugger) ShouldPause() bool {
	if !d.enabled {
		return false
	}

	if d.stepMode {
		return true
	}

	cur, ok := d.topFrame()
	if !ok {
		return false
	}
	return d.breakpoints[cur.ip]
}

func (d *Debugger) topFrame() (*frame, bool) {
	if len(d.vm.frames) == 0 {
		return nil, false
	}
	return d.vm.frames[len(d.vm.frames)-1], true
}

// ShowCurrentInstruction displays the current instruction being executed.
func (d *Debugger) ShowCurrentInstruction() {
	cur, ok := d.topFrame()
	if !ok || cur.ip >= len(cur.chunk.Code) {
		fmt.Println("No current instruction")
		return
	}
	fmt.Printf("  %4d: %s\n", cur.ip, d.formatInstruction(cur.chunk, cur.ip))
}

// formatInstruction renders the instruction at ip without advancing any
// frame's own ip, mirroring the operand-width table bytecode.Chunk's own
// Disassemble uses.
func (d *Debugger) formatInstruction(chunk bytecode.Chunk, ip int) string {
	op := bytecode.Op(chunk.Code[ip])
	switch op {
	case bytecode.OpConstant, bytecode.OpDot, bytecode.OpDefineGlobal, bytecode.OpGetGlobal,
		bytecode.OpSetGlobal, bytecode.OpClass, bytecode.OpImport, bytecode.OpGetMethod:
		idx := chunk.Code[ip+1]
		if int(idx) < len(chunk.Constants) {
			return fmt.Sprintf("%-16s %4d | %s", op, idx, chunk.Constants[idx])
		}
		return fmt.Sprintf("%-16s %4d", op, idx)
	case bytecode.OpArray, bytecode.OpCall, bytecode.OpParallel, bytecode.OpNew,
		bytecode.OpGetLocal, bytecode.OpSetLocal, bytecode.OpPopN:
		return fmt.Sprintf("%-16s %4d", op, chunk.Code[ip+1])
	case bytecode.OpJump, bytecode.OpJumpIfFalse:
		off := int(chunk.Code[ip+1])<<8 | int(chunk.Code[ip+2])
		return fmt.Sprintf("%-16s -> %d", op, ip+3+off)
	case bytecode.OpJumpBack:
		off := int(chunk.Code[ip+1])<<8 | int(chunk.Code[ip+2])
		return fmt.Sprintf("%-16s -> %d", op, ip+3-off)
	default:
		return op.String()
	}
}

func instructionWidth(op bytecode.Op) int {
	switch op {
	case bytecode.OpConstant, bytecode.OpDot, bytecode.OpDefineGlobal, bytecode.OpGetGlobal,
		bytecode.OpSetGlobal, bytecode.OpClass, bytecode.OpImport, bytecode.OpGetMethod,
		bytecode.OpArray, bytecode.OpCall, bytecode.OpParallel, bytecode.OpNew,
		bytecode.OpGetLocal, bytecode.OpSetLocal, bytecode.OpPopN:
		return 2
	case bytecode.OpJump, bytecode.OpJumpIfFalse, bytecode.OpJumpBack:
		return 3
	default:
		return 1
	}
}

// ShowStack displays the current VM stack, top to bottom.
func (d *Debugger) ShowStack() {
	fmt.Println("Stack (top to bottom):")
	if len(d.vm.stack) == 0 {
		fmt.Println("  (empty)")
		return
	}

	for i := len(d.vm.stack) - 1; i >= 0; i-- {
		fmt.Printf("  [%d] %s\n", i, d.vm.stack[i])
	}
}

// ShowLocals displays the current frame's locals: the window of the
// shared stack from its base onward.
func (d *Debugger) ShowLocals() {
	cur, ok := d.topFrame()
	if !ok {
		fmt.Println("Local variables:")
		fmt.Println("  (no active frame)")
		return
	}
	fmt.Printf("Local variables (frame %q, base %d):\n", cur.name, cur.base)
	if len(d.vm.stack) <= cur.base {
		fmt.Println("  (none set)")
		return
	}
	for i := cur.base; i < len(d.vm.stack); i++ {
		fmt.Printf("  [%d] %s\n", i-cur.base, d.vm.stack[i])
	}
}

// ShowGlobals displays all global variables.
func (d *Debugger) ShowGlobals() {
	fmt.Println("Global variables:")
	if len(d.vm.globals) == 0 {
		fmt.Println("  (none)")
		return
	}

	for name, val := range d.vm.globals {
		fmt.Printf("  %s = %s\n", name, val)
	}
}

// ShowCallStack displays the current call stack, top to bottom.
func (d *Debugger) ShowCallStack() {
	fmt.Println("Call stack (top to bottom):")
	if len(d.vm.frames) == 0 {
		fmt.Println("  (empty)")
		return
	}

	for i := len(d.vm.frames) - 1; i >= 0; i-- {
		f := d.vm.frames[i]
		fmt.Printf("  %s [IP: %d, base: %d]\n", f.name, f.ip, f.base)
	}
}

// InteractivePrompt provides an interactive debugger prompt.
// This is called when execution pauses at a breakpoint or in step mode.
func (d *Debugger) InteractivePrompt() (continueExecution bool) {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("\n=== Debugger Paused ===")
	d.ShowCurrentInstruction()

	for {
		fmt.Print("debug> ")
		if !scanner.Scan() {
			return false
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		command := parts[0]

		switch command {
		case "help", "h", "?":
			d.printHelp()

		case "continue", "c":
			d.SetStepMode(false)
			return true

		case "step", "s", "next", "n":
			d.SetStepMode(true)
			return true

		case "stack", "st":
			d.ShowStack()

		case "locals", "l":
			d.ShowLocals()

		case "globals", "g":
			d.ShowGlobals()

		case "callstack", "cs":
			d.ShowCallStack()

		case "instruction", "i":
			d.ShowCurrentInstruction()

		case "breakpoint", "b":
			if len(parts) < 2 {
				fmt.Println("Usage: breakpoint <instruction_offset>")
				continue
			}
			ip, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("Invalid instruction offset")
				continue
			}
			d.AddBreakpoint(ip)
			fmt.Printf("Breakpoint added at instruction %d\n", ip)

		case "delete", "d":
			if len(parts) < 2 {
				fmt.Println("Usage: delete <instruction_offset>")
				continue
			}
			ip, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("Invalid instruction offset")
				continue
			}
			d.RemoveBreakpoint(ip)
			fmt.Printf("Breakpoint removed at instruction %d\n", ip)

		case "list", "ls":
			d.listInstructions()

		case "quit", "q":
			return false

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", command)
		}
	}
}

// printHelp displays available debugger commands.
func (d *Debugger) printHelp() {
	fmt.Println("Debugger Commands:")
	fmt.Println("  help, h, ?           Show this help")
	fmt.Println("  continue, c          Continue execution")
	fmt.Println("  step, s, next, n     Pause before the next instruction")
	fmt.Println("  stack, st            Show VM stack")
	fmt.Println("  locals, l            Show the current frame's locals")
	fmt.Println("  globals, g           Show global variables")
	fmt.Println("  callstack, cs        Show call stack")
	fmt.Println("  instruction, i       Show current instruction")
	fmt.Println("  breakpoint <n>, b    Add breakpoint at instruction offset n")
	fmt.Println("  delete <n>, d        Remove breakpoint at instruction offset n")
	fmt.Println("  list, ls             List all instructions in the current chunk")
	fmt.Println("  quit, q              Quit debugging (abort execution)")
}

// listInstructions displays every instruction in the current frame's chunk.
func (d *Debugger) listInstructions() {
	cur, ok := d.topFrame()
	if !ok {
		fmt.Println("(no active frame)")
		return
	}

	fmt.Println("Instructions:")
	offset := 0
	for offset < len(cur.chunk.Code) {
		marker := "  "
		if offset == cur.ip {
			marker = "->"
		} else if d.breakpoints[offset] {
			marker = "*"
		}
		fmt.Printf("%s %4d: %s\n", marker, offset, d.formatInstruction(cur.chunk, offset))
		offset += instructionWidth(bytecode.Op(cur.chunk.Code[offset]))
	}
}
