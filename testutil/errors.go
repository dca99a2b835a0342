/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains assertion helpers for tests of dispatchers and their collaborators.
package testutil

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stretchr/testify/require"
)

type tHelper interface {
	Helper()
}

// RequireNoValueInChannel asserts that there is nothing in the buffered channel (e.g. no reported downstream failure).
func RequireNoValueInChannel[V any](t require.TestingT, c <-chan V, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	select {
	case v, ok := <-c:
		if ok {
			require.FailNow(t, fmt.Sprintf("Channel should be empty, but has: %+v", v), msgAndArgs...)
		}
	default:
	}
}

// RequireValueInChannel waits for a value from the channel and fails the test if it doesn't come within timeout
// or if the channel is closed.
func RequireValueInChannel[V any](t require.TestingT, c <-chan V, timeout time.Duration, msgAndArgs ...interface{}) V {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v, ok := <-c:
		if !ok {
			require.FailNow(t, "Channel is closed", msgAndArgs...)
		}
		return v
	case <-timer.C:
		require.FailNow(t, fmt.Sprintf("No value in channel within %s", timeout), msgAndArgs...)
	}
	var zero V
	return zero
}

// RequireErrorIsAny asserts that at least one of the errors in err's chain matches at least one target.
// This is a wrapper for errors.Is.
func RequireErrorIsAny(t require.TestingT, err error, targets []error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	for _, targetErr := range targets {
		if errors.Is(err, targetErr) {
			return
		}
	}
	var expectedErrTexts []string
	for _, targetErr := range targets {
		expectedErrTexts = append(expectedErrTexts, fmt.Sprintf("%q", targetErr.Error()))
	}
	require.FailNow(t, fmt.Sprintf("At least one target error should be in err chain:\n"+
		"expected: [%s]\n"+
		"in chain: %s", strings.Join(expectedErrTexts, "; "), buildErrorChainString(err),
	), msgAndArgs...)
}

func buildErrorChainString(err error) string {
	if err == nil {
		return ""
	}

	e := errors.Unwrap(err)
	chain := fmt.Sprintf("%q", err.Error())
	for e != nil {
		chain += fmt.Sprintf("\n\t%q", e.Error())
		e = errors.Unwrap(e)
	}
	return chain
}
