// Package main provides the entry point for armcore.
// armcore is a functional ARM32 decode and execute core.
//
// For the full CLI, use: go run ./cmd/armcore
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("armcore - ARM32 Decode/Execute Core")
	fmt.Println("Fetch cache built on the Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: armcore [options] <program>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -base      Load address for raw images")
	fmt.Println("  -config    Path to run configuration JSON file")
	fmt.Println("  -max       Maximum instructions to execute")
	fmt.Println("  -no-cache  Bypass the fetch cache")
	fmt.Println("  -v         Trace every executed instruction")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/armcore' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/armcore' instead.")
	}
}
