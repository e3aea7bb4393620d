package devserver

import (
	"fmt"
	"os/exec"
	"runtime"
)

// openBrowser launches the host's default browser at url, grounded on
// bennypowers-cem's cmd/serve.go openBrowser helper (spec.md §4.8's
// `/open-url` endpoint).
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
