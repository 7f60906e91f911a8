// Command derefmap-inspect is a read-only operational tool for a DerefMap's
// on-disk bbolt state: it streams findDependantsOf results and dumps forward
// rows, without ever writing to the store.
package main

import (
	"fmt"
	"os"
)

func main() {
	rootCmd := NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
