package main

import (
	"os"

	"github.com/goliatone/go-ipn/cmd/ipn/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
