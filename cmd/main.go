package main

import (
	"os"

	"negopro-questionnaire/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
