package main

import (
	"os"

	"github.com/abhisek/medisim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
