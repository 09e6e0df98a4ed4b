// Command gumc compiles a single C-module source file, links it, calls
// one exported function with no arguments, and prints the result. It is
// a smoke-test harness for the compiler and linker, not a general build
// tool.
package main

import (
	"fmt"
	"os"

	"j5.nz/gumcore/compiler"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [-call name] <file.c>\n", os.Args[0])
		os.Exit(1)
	}

	callName := "main"
	var srcPath string
	i := 1
	for i < len(os.Args) {
		if os.Args[i] == "-call" && i+1 < len(os.Args) {
			callName = os.Args[i+1]
			i = i + 2
		} else {
			srcPath = os.Args[i]
			i = i + 1
		}
	}

	if srcPath == "" {
		fmt.Fprintf(os.Stderr, "gumc: missing source file\n")
		os.Exit(1)
	}

	src, err := os.ReadFile(srcPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gumc: %v\n", err)
		os.Exit(1)
	}

	m, err := compiler.New(string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "gumc: compile: %v\n", err)
		os.Exit(1)
	}

	if err := m.Link(); err != nil {
		fmt.Fprintf(os.Stderr, "gumc: link: %v\n", err)
		os.Exit(1)
	}
	defer m.Free()

	addr := m.FindSymbol(callName)
	if addr == 0 {
		fmt.Fprintf(os.Stderr, "gumc: symbol %q not found\n", callName)
		os.Exit(1)
	}

	result := compiler.CallForTest(addr)
	fmt.Printf("%s() = %d\n", callName, result)
}
