// Package main provides the entry point for the vexus CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/vexus/cmd/vexus/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
