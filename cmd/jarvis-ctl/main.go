package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cli "github.com/spf13/pflag"

	"jarvis/internal/ipc"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [--socket path] say <text...> | audio <file>\n", filepath.Base(os.Args[0]))
	cli.PrintDefaults()
}

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket of the jarvis daemon")
	cli.Usage = usage
	cli.Parse()

	args := cli.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}

	var msg ipc.ControlMessage
	switch args[0] {
	case ipc.CmdSay:
		msg = ipc.ControlMessage{Cmd: ipc.CmdSay, Text: strings.Join(args[1:], " ")}
	case ipc.CmdAudio:
		path, err := filepath.Abs(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad path:", err)
			os.Exit(2)
		}
		msg = ipc.ControlMessage{Cmd: ipc.CmdAudio, Path: path}
	default:
		usage()
		os.Exit(2)
	}

	if err := ipc.Send(*socket, msg); err != nil {
		fmt.Fprintln(os.Stderr, "jarvis not running:", err)
		os.Exit(1)
	}
}
