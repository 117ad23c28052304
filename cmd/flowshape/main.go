// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"fmt"
	"os"
	"strings"

	"grimm.is/flowshape/cmd"
)

const usage = `Usage: flowshape <command> [flags]

Commands:
  serve    capture, shape and serve the API (default)
  top      terminal dashboard for a running instance
  replay   run a pcap file through the pipeline and print snapshots

Run 'flowshape <command> -h' for command flags.
`

func main() {
	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	var err error
	switch command {
	case "serve":
		err = cmd.RunServe(args)
	case "top":
		err = cmd.RunTop(args)
	case "replay":
		err = cmd.RunReplay(args)
	case "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowshape %s: %v\n", command, err)
		os.Exit(1)
	}
}
