package main

import (
	"os"

	"github.com/bnema/azad-hub/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
