package main

import (
	"os"

	"github.com/compozy/docqa/cli"
)

func main() {
	os.Exit(cli.Execute())
}
