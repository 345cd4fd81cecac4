package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// readPrompt returns the prompt from args, from inputFile ("-" for stdin) or
// fallback when neither is given.
func readPrompt(args []string, inputFile string, stdin io.Reader, fallback string) (string, error) {
	if inputFile != "" && len(args) > 0 {
		return "", fmt.Errorf("prompt args and -F are mutually exclusive")
	}
	if inputFile == "" {
		if len(args) == 0 {
			return fallback, nil
		}
		return strings.Join(args, " "), nil
	}
	if inputFile == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return trimTrailingNewline(string(data)), nil
	}
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return trimTrailingNewline(string(data)), nil
}

func trimTrailingNewline(value string) string {
	return strings.TrimRight(value, "\r\n")
}

func requirePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("prompt is required")
	}
	return nil
}
