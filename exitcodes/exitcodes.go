// Package exitcodes defines the standard exit codes used by dspot.
package exitcodes

// Exit code constants used by dspot
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every executed variant passed
// * TestFailure (1): Used when one or more variants failed
// * RuntimeErr (2): Used for runtime errors such as load failures, timeouts or panics
const (
	Success     = 0 // All variants pass
	TestFailure = 1 // Variant failures
	RuntimeErr  = 2 // Runtime errors or timeouts
)
