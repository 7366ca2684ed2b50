package main

import (
	"fmt"
	"os"

	"notemat/internal/app"
)

func main() {
	application := app.New(os.Args[1:])
	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "ntm failed: %v\n", err)
		os.Exit(1)
	}
}
