package capture

import (
	"os/exec"
	"runtime"
)

// OpenPrivacySettings makes a best-effort attempt to open the OS dialog
// where the user can grant audio capture permission. Failures are reported
// through diag only; the caller never depends on this succeeding.
func OpenPrivacySettings(diag DiagFunc) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open",
			"x-apple.systempreferences:com.apple.preference.security?Privacy_ScreenCapture")
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "ms-settings:privacy-microphone")
	case "linux":
		// No uniform privacy surface; point the user at sound settings
		// where available.
		cmd = exec.Command("xdg-open", "settings://sound")
	default:
		return
	}
	if err := cmd.Start(); err != nil {
		diag.emit("could not open privacy settings: %v", err)
		return
	}
	go func() { _ = cmd.Wait() }()
}
