package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gopper/host/client"
)

var sendCmd = &cobra.Command{
	Use:   "send [file]",
	Short: "Stream a G-code file to the board, one line at a time",
	Long: `send reads file line by line (or stdin if file is omitted),
dropping blank lines and full-line comments, and sends each remaining
line to the board in order, waiting for its "ok" before sending the next.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	in := os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}

	c, err := client.Connect(device, baud)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer c.Close()

	scanner := bufio.NewScanner(in)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		reports, err := c.SendLine(line)
		for _, r := range reports {
			fmt.Println(r)
		}
		if err != nil {
			return fmt.Errorf("line %d (%q): %w", lineNum, line, err)
		}
	}
	return scanner.Err()
}
