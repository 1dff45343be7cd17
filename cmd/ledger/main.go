package main

import (
	"os"

	"github.com/tinoosan/retail-ledger/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
