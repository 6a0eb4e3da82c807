package main

import (
	"os"

	"github.com/calvinmclean/taurino/cmd/taurino/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
