package main

import (
	"os"

	"github.com/pik-ry/laskutin/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
