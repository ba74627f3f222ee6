package main

import (
	"mirrorsync/cmd"
	"os"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		// A bare invocation runs the daemon in the foreground.
		args = []string{"daemon"}
	}

	os.Exit(cmd.Execute(args))
}
