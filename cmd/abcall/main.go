// Command abcall dispatches A/B test calls from the shell through the same
// webhook dispatcher the API uses.
package main

import (
	"io"
	"os"

	"github.com/jessevdk/go-flags"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		os.Exit(1)
	}
}

// run parses args and executes the selected command. go-flags prints
// parse errors itself.
func run(args []string, out io.Writer) error {
	parser := flags.NewParser(newOptions(out), flags.Default)
	if _, err := parser.ParseArgs(args); err != nil && !flags.WroteHelp(err) {
		return err
	}
	return nil
}
