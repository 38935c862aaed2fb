package main

import (
	"os"

	"github.com/ChitkulLakshya/quizwhiz/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
