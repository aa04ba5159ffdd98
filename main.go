package main

import (
	"os"

	"github.com/medbox-iot/medbox/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
