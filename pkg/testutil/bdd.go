package testutil

import "testing"

// Given, When, and Then wrap t.Run so scenario-style tests read as prose in
// verbose output. The godog suite under e2e/ covers black-box scenarios;
// these stay for in-process tests.

func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+desc, fn)
}
