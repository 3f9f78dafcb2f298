// Package prompt provides simple interactive prompts for terminal input.
// Prompts are written to stderr so stdout stays clean for command output.
package prompt

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// Replaced in tests.
var (
	stdin  io.Reader = os.Stdin
	stderr io.Writer = os.Stderr
)

// Interactive reports whether stdin is a terminal a user can answer from.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// scanLine reads a single line from stdin byte-by-byte with no buffering,
// so nothing typed after the answer is swallowed.
func scanLine() (string, bool) {
	var buf []byte
	b := make([]byte, 1)
	for {
		n, err := stdin.Read(b)
		if err != nil || n == 0 {
			return strings.TrimSpace(string(buf)), len(buf) > 0
		}
		switch b[0] {
		case '\n':
			return strings.TrimSpace(string(buf)), true
		case '\r':
		default:
			buf = append(buf, b[0])
		}
	}
}

// Confirm asks a yes/no question and returns true for yes.
func Confirm(question string) bool {
	fmt.Fprintf(stderr, "%s (yes/no): ", question)
	answer, ok := scanLine()
	if !ok {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}

// ReadLine prompts for a single line of text input.
func ReadLine(label string) string {
	fmt.Fprintf(stderr, "%s: ", label)
	line, _ := scanLine()
	return line
}

// Select displays a numbered list and returns the chosen item. Pressing
// Enter picks def when def is non-empty. With allowOther, any text that is
// not a menu number is returned as typed; without it, text must match the
// first word of exactly one item. Returns "" after three invalid answers.
func Select(label string, items []string, def string, allowOther bool) string {
	printMenu(label, items, def)
	for attempt := 0; attempt < 3; attempt++ {
		fmt.Fprint(stderr, "Enter choice: ")
		input, ok := scanLine()
		if !ok && input == "" {
			return def
		}
		if input == "" && def != "" {
			return def
		}
		if choice, ok := pick(items, input, allowOther); ok {
			return choice
		}
		fmt.Fprintln(stderr, "  Invalid choice, try again.")
	}
	return ""
}

func pick(items []string, input string, allowOther bool) (string, bool) {
	if input == "" {
		return "", false
	}
	if idx, err := strconv.Atoi(input); err == nil {
		if idx >= 1 && idx <= len(items) {
			return items[idx-1], true
		}
		return "", false
	}
	if allowOther {
		return input, true
	}
	var match string
	matches := 0
	for _, item := range items {
		if strings.EqualFold(strings.SplitN(item, " ", 2)[0], input) {
			match = item
			matches++
		}
	}
	return match, matches == 1
}

func printMenu(label string, items []string, def string) {
	fmt.Fprintf(stderr, "%s:\n", label)
	for i, item := range items {
		marker := "  "
		if item == def {
			marker = " *"
		}
		fmt.Fprintf(stderr, "%s[%d] %s\n", marker, i+1, item)
	}
	if def != "" {
		fmt.Fprintf(stderr, "   (Enter for %s)\n", def)
	}
}
