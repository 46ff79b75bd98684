// Package exitcodes defines the standard exit codes used by op-testd.
package exitcodes

const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors such as bad config or listener failures
)
