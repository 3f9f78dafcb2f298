// Package browser opens URLs with the platform's default handler.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// command returns the opener for goos.
func command(goos, url string) (string, []string) {
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		return "open", []string{url}
	default:
		return "xdg-open", []string{url}
	}
}

// execCommand is replaced in tests.
var execCommand = exec.Command

// Open launches url without waiting for the browser to exit.
func Open(url string) error {
	name, args := command(runtime.GOOS, url)
	cmd := execCommand(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("opening %s with %s: %w", url, name, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
