package logging

import "testing"

func TestConfigureDoesNotPanic(t *testing.T) {
	Configure(Options{Diagnostic: true})
	Configure(Options{Verbose: true})
	Configure(Options{})
}
