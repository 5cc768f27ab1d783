// Command trader runs the virtual trading engine.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"virtual-trader/internal/cli"
	"virtual-trader/internal/logging"
)

func main() {
	// A missing .env is normal; the process environment is used as is.
	_ = godotenv.Load()

	logger := logging.NewLogger()

	if err := cli.NewRootCmd(logger).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
