package main

import (
	"os"

	"github.com/tesso57/feedwatch/internal/presentation/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:], os.Stdout, os.Stderr))
}
