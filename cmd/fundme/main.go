// Command fundme runs a crowdfunding ledger from the command line.
package main

import (
	"os"

	"github.com/xraph/fundme/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdout, os.Stderr))
}
