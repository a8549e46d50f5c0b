package utils

import (
	"os/exec"
	"runtime"
)

// browserCommand returns the platform launcher for url.
func browserCommand(goos, url string) *exec.Cmd {
	switch goos {
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		return exec.Command("open", url)
	default:
		return exec.Command("xdg-open", url)
	}
}

// OpenBrowser opens url in the default browser without waiting for it.
func OpenBrowser(url string) error {
	return browserCommand(runtime.GOOS, url).Start()
}
