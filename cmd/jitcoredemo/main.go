// Command jitcoredemo is a thin harness over jitcore: assemble a tiny
// amd64 function with asmemit, relocate it into executable memory via
// jitcore's allocator, and call it. Grounded on flapc's cli.go command
// dispatch (_teacher_ref/cli.go), rewritten against cobra/pflag the way
// moby-moby and saferwall-pe structure their CLIs, since this core's
// surface (assemble/relocate/install/call) doesn't need flapc's
// source-file/output-path argument shape.
package main

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/spf13/cobra"
	"github.com/xyproto/jitcore"
	"github.com/xyproto/jitcore/asmemit"
)

var (
	flagValue   int64
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:   "jitcoredemo",
		Short: "Assemble, relocate, and run a tiny JIT function",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Assemble `mov rax, <value>; ret`, install it executable, and call it",
		RunE:  runDemo,
	}
	runCmd.Flags().Int64VarP(&flagValue, "value", "v", 42, "immediate value the generated function returns")
	runCmd.Flags().BoolVar(&flagVerbose, "trace", false, "trace emitted instructions to stderr")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "jitcoredemo:", err)
		os.Exit(1)
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	asmemit.Verbose = flagVerbose

	info, err := jitcore.NewCodeInfo(jitcore.ArchX64, 8, 16, jitcore.CallConvSystemV, jitcore.UnboundBaseAddress)
	if err != nil {
		return err
	}
	holder := jitcore.NewCodeHolder()
	if err := holder.Init(info); err != nil {
		return err
	}

	emitter := asmemit.NewX86Emitter()
	if err := holder.Attach(emitter); err != nil {
		return err
	}
	if err := emitter.MovImmToReg(asmemit.RAX, uint64(flagValue)); err != nil {
		return err
	}
	if err := emitter.Ret(); err != nil {
		return err
	}

	if flagVerbose {
		holder.Dump(os.Stderr)
	}

	size := holder.GetCodeSize()
	alloc := jitcore.NewAllocator()
	ptr, err := alloc.Alloc(int(size))
	if err != nil {
		return fmt.Errorf("allocating executable memory: %w", err)
	}
	defer alloc.Release(ptr)

	// The bundled allocator maps its blocks combined write+execute
	// (W+X, not strict W^X): one block backs many independently
	// released sub-allocations and mprotect only applies page-wide, so
	// the code is written straight into the executable range.
	dst := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)

	// baseAddress is the address the code will actually execute at,
	// which for this allocator is the pointer Alloc just returned —
	// there is no further relocation/loading step.
	if _, err := holder.Relocate(dst, uint64(ptr)); err != nil {
		return err
	}

	fn := makeFunc(ptr)
	result := fn()
	fmt.Printf("result = %d\n", result)
	return nil
}

// makeFunc reinterprets a raw code pointer as a Go function value.
// There is no library for this in the example pack or the wider
// ecosystem — calling into JIT-compiled bytes is inherently an
// unsafe-pointer operation, so this is the one piece of this demo built
// directly on unsafe rather than a third-party abstraction.
func makeFunc(ptr uintptr) func() int64 {
	// A Go func value points at a closure record whose first word is
	// the code address, so the value must point at a word holding ptr,
	// not at ptr itself.
	code := ptr
	codePtr := &code
	return *(*func() int64)(unsafe.Pointer(&codePtr))
}
