package main

import (
	"os"

	"github.com/funvibe/taffy/pkg/cli"
)

func main() {
	os.Exit(cli.Run(os.Args))
}
