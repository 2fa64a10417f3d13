package main

import (
	"context"
	"os"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/stevemurr/site-content-server/cli"
)

var version = "dev"

func main() {
	code := cli.Execute(context.Background(), os.Args[1:], cli.Dependencies{Version: version}, os.Stdout, os.Stderr)
	os.Exit(code)
}
