// Command fastq-stats computes read statistics for FASTQ files.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/fastq-stats/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
