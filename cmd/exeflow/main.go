package main

import (
	"os"

	"github.com/StatsAiGuy/exeflow/internal/interface/cli"
)

// version is set via -ldflags at build time
var version = "dev"

func main() {
	if err := cli.NewRoot(version).Execute(); err != nil {
		os.Exit(1)
	}
}
