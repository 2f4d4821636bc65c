package main

import (
	"os"

	"github.com/Custos/imthedev-sub000/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
