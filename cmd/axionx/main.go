package main

import (
	"os"

	"axionx/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		os.Exit(1)
	}
}
