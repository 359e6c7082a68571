package main

import (
	"os"

	"github.com/okral/overseer/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
