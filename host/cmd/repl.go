package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"gopper/host/client"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive G-code console",
	Long: `repl opens a prompt: plain lines are sent to the board as G-code.
Lines starting with ':' are host-side meta-commands (tokenized the way a
shell would, so quoted paths with spaces work):

  :load <file>   stream a G-code file, same as the send command
  :quit          disconnect and exit`,
	RunE: runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	c, err := client.Connect(device, baud)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer c.Close()

	fmt.Printf("Connected to %s. Type :quit to exit.\n", device)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ":") {
			if done, err := runMeta(c, line[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			} else if done {
				break
			}
			continue
		}

		reports, err := c.SendLine(line)
		for _, r := range reports {
			fmt.Println(r)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println("ok")
	}

	return scanner.Err()
}

// runMeta handles one ':'-prefixed REPL command, tokenized with shlex so
// quoted arguments (a file path with spaces) parse correctly. done is true
// once the REPL should exit.
func runMeta(c *client.Client, line string) (done bool, err error) {
	fields, err := shlex.Split(line)
	if err != nil || len(fields) == 0 {
		return false, fmt.Errorf("bad meta-command: %q", line)
	}

	switch fields[0] {
	case "quit", "exit":
		return true, nil

	case "load":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: :load <file>")
		}
		return false, streamFile(c, fields[1])

	default:
		return false, fmt.Errorf("unknown meta-command %q", fields[0])
	}
}

func streamFile(c *client.Client, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		reports, err := c.SendLine(line)
		for _, r := range reports {
			fmt.Println(r)
		}
		if err != nil {
			return err
		}
	}
	return scanner.Err()
}
