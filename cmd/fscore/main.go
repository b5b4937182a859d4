package main

import (
	"os"

	"fscore/cmd/fscore/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
