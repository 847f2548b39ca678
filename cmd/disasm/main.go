// Command disasm decodes a compiled program image and prints its
// header, constant pool, string pool, and a mnemonic instruction
// listing — a read-only consumer exercising the binary format exactly
// as a third-party tool would.
package main

import (
	"fmt"
	"os"

	"mec/pkg/disasm"
	"mec/pkg/vm"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: disasm <binary>")
		os.Exit(1)
	}

	image, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "disasm:", err)
		os.Exit(2)
	}

	program, err := vm.Decode(image)
	if err != nil {
		fmt.Fprintln(os.Stderr, "disasm:", err)
		os.Exit(3)
	}

	if err := disasm.Listing(os.Stdout, program); err != nil {
		fmt.Fprintln(os.Stderr, "disasm:", err)
		os.Exit(3)
	}
}
