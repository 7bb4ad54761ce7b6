package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/letterman/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "letterman: %v\n", err)
		os.Exit(1)
	}
}
