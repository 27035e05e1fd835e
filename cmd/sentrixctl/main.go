package main

import (
	"os"

	"github.com/sentrix-systems/sentrix/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
