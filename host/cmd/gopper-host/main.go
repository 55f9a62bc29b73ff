// Command gopper-host is a line-oriented G-code console for talking to a
// gopper board over its USB CDC serial port.
package main

import (
	"fmt"
	"os"

	"gopper/host/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
