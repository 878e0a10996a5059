package main

import (
	"os"

	"github.com/noah-isme/sma-library-api/internal/cli"
)

// @title School Library API
// @version 1.0.0
// @description Circulation ledger, catalog and risk audit for a school library.
// @BasePath /api/v1
// @schemes http

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
