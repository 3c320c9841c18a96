// Command conductor runs the execution admission and queue subsystem:
// the Queue Processor, the Admission Entry Point's HTTP surface, and
// the one-shot recovery/cleanup operations that support them.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
