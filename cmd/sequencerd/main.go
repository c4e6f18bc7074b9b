package main

import (
	"os"

	"github.com/ordsys/sequencer/cmd/sequencerd/commands"
)

func main() {
	if err := commands.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
