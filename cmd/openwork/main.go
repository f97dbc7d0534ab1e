package main

import (
	"os"

	"github.com/moshesimon/OpenWork-sub000/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
