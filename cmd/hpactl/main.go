package main

import (
	"os"

	"github.com/hpa-platform/hpactl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
