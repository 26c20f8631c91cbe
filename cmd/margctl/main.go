package main

import (
	"os"

	"github.com/couchcryptid/margdarshak/cmd/margctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
