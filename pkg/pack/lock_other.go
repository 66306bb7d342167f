//go:build !unix

package pack

// processAlive has no portable liveness check here, so every lock is
// treated as held.
func processAlive(int) bool { return true }
