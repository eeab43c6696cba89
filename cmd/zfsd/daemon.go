package main

import (
	"fmt"
	"os"

	"github.com/jacobsa/daemonize"
)

// inBackgroundEnvVar marks the re-exec'd child process, mirroring gcsfuse's
// logger.GCSFuseInBackgroundMode env-var handshake between the parent CLI
// invocation and the daemonized child.
const inBackgroundEnvVar = "ZFSD_IN_BACKGROUND"

func runningInBackground() bool {
	return os.Getenv(inBackgroundEnvVar) == "true"
}

// daemonizeIfRequested forks zfsd into the background when --background was
// passed and this process isn't already the re-exec'd child, mirroring
// legacy_main.go's daemonize.Run(path, args, env, os.Stdout) call. It
// returns true when the caller (the original foreground process) should
// simply exit, having handed off to the child and waited for its outcome.
func daemonizeIfRequested() (handedOff bool, err error) {
	if !background || runningInBackground() {
		return false, nil
	}

	path, err := os.Executable()
	if err != nil {
		return false, fmt.Errorf("zfsd: resolve executable path: %w", err)
	}
	env := append(os.Environ(), inBackgroundEnvVar+"=true")
	if err := daemonize.Run(path, os.Args[1:], env, os.Stdout); err != nil {
		return false, fmt.Errorf("zfsd: daemonize.Run: %w", err)
	}
	return true, nil
}

// signalMountOutcome tells the waiting parent process (started via
// daemonizeIfRequested in the parent) whether the mount succeeded, mirroring
// legacy_main.go's markSuccessfulMount/markMountFailure calling
// daemonize.SignalOutcome. A no-op when running in the foreground.
func signalMountOutcome(err error) {
	if !runningInBackground() {
		return
	}
	if sigErr := daemonize.SignalOutcome(err); sigErr != nil {
		fmt.Fprintf(os.Stderr, "zfsd: daemonize.SignalOutcome: %v\n", sigErr)
	}
}
