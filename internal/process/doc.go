// Package process supervises long-running system daemons.
//
// The edge node uses it to keep wpa_supplicant alive underneath the link
// driver, but nothing here is specific to that daemon.
//
// Features:
//   - Start/stop with SIGTERM to the process group, then SIGKILL
//   - Restart on failure with exponential backoff (cenkalti/backoff)
//   - Backoff reset after a run outlasts StableThreshold
//   - Exit codes that a restart cannot fix stop supervision
//   - Periodic health checks that kill a hung process
//   - stdout/stderr captured line by line at debug level
//
// Example usage:
//
//	sup := process.NewSupervisor(process.Config{
//	    Name:               "wpa_supplicant",
//	    Binary:             "/usr/sbin/wpa_supplicant",
//	    Args:               []string{"-i", "wlan0", "-c", "/var/lib/edge/wpa.conf"},
//	    RestartOnFailure:   true,
//	    MaxRestartAttempts: 10,
//	})
//
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package process
