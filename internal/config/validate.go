package config

import "fmt"

// Validate rejects a Config with values that would make the daemon
// unrunnable, mirroring gcsfuse's cfg/validate.go per-section checks.
func Validate(c *Config) error {
	if c.Node.SID == 0 || c.Node.SID == ^uint32(0) {
		return fmt.Errorf("config: node.sid must not be 0 or %d", ^uint32(0))
	}
	if c.Node.Name == "" {
		return fmt.Errorf("config: node.name must not be empty")
	}

	if c.Scheduler.MinSpare < 1 {
		return fmt.Errorf("config: scheduler.min-spare must be at least 1")
	}
	if c.Scheduler.MaxSpare < c.Scheduler.MinSpare {
		return fmt.Errorf("config: scheduler.max-spare must be >= min-spare")
	}
	if c.Scheduler.MaxTotal < c.Scheduler.MaxSpare {
		return fmt.Errorf("config: scheduler.max-total must be >= max-spare")
	}

	if c.Conn.Port <= 0 || c.Conn.Port > 65535 {
		return fmt.Errorf("config: connection.port must be a valid TCP port")
	}
	if c.Conn.MaxOpenSockets < 1 {
		return fmt.Errorf("config: connection.max-open-sockets must be at least 1")
	}

	if c.Metadata.PathDepth < 0 {
		return fmt.Errorf("config: metadata.path-depth must not be negative")
	}
	if c.Metadata.MaxOpenHandles < 1 {
		return fmt.Errorf("config: metadata.max-open-handles must be at least 1")
	}

	return nil
}
