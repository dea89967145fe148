package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/runnerr0/foresight/internal/cli"
)

var version = "dev"

func main() {
	// A missing .env is normal; the process environment is used as is.
	_ = godotenv.Load()

	// go-flags prints parse and command errors itself.
	if err := cli.Run(version); err != nil {
		os.Exit(1)
	}
}
