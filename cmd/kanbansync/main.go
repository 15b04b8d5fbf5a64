package main

import (
	"os"

	"kanbansync/cmd/kanbansync/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], os.Stdout, os.Stderr, nil))
}
