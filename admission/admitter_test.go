/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewAdmitter(t *testing.T) {
	tests := []struct {
		name           string
		alg            Algorithm
		rate           Rate
		burst          int
		wantType       Admitter
		expectedErrMsg string
	}{
		{name: "default algorithm", alg: "", rate: Rate{5, time.Second}, wantType: &SlidingLog{}},
		{name: "sliding log", alg: AlgorithmSlidingLog, rate: Rate{5, time.Second}, wantType: &SlidingLog{}},
		{name: "sliding window", alg: AlgorithmSlidingWindow, rate: Rate{5, time.Second}, wantType: &SlidingWindow{}},
		{name: "leaky bucket", alg: AlgorithmLeakyBucket, rate: Rate{5, time.Second}, wantType: &LeakyBucket{}},
		{name: "token bucket", alg: AlgorithmTokenBucket, rate: Rate{5, time.Second}, burst: 2, wantType: &TokenBucket{}},
		{name: "unknown algorithm", alg: "fixed_window", rate: Rate{5, time.Second},
			expectedErrMsg: `unknown admission algorithm "fixed_window"`},
		{name: "negative count", alg: AlgorithmSlidingLog, rate: Rate{-1, time.Second},
			expectedErrMsg: "max admissions in period should not be negative"},
		{name: "negative period", alg: AlgorithmTokenBucket, rate: Rate{1, -time.Second},
			expectedErrMsg: "period should not be negative"},
		{name: "negative burst", alg: AlgorithmLeakyBucket, rate: Rate{1, time.Second}, burst: -1,
			expectedErrMsg: "burst should not be negative"},
		{name: "zero period for sliding window", alg: AlgorithmSlidingWindow, rate: Rate{1, 0},
			expectedErrMsg: "period should be positive for sliding window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admitter, err := NewAdmitter(tt.alg, tt.rate, tt.burst)
			if tt.expectedErrMsg != "" {
				require.ErrorContains(t, err, tt.expectedErrMsg)
				require.Nil(t, admitter)
				return
			}
			require.NoError(t, err)
			require.IsType(t, tt.wantType, admitter)
		})
	}
}

func TestNewAdmitter_ZeroCountNeverAdmits(t *testing.T) {
	for _, alg := range Algorithms {
		t.Run(string(alg), func(t *testing.T) {
			admitter, err := NewAdmitter(alg, Rate{0, time.Second}, 0)
			require.NoError(t, err)
			for i := 0; i < 5; i++ {
				require.False(t, admitter.Admit())
			}
		})
	}
}

func TestAdmitters_AdmitBurstThenReject(t *testing.T) {
	const count = 5
	for _, alg := range Algorithms {
		t.Run(string(alg), func(t *testing.T) {
			admitter, err := NewAdmitter(alg, Rate{count, time.Minute}, 0)
			require.NoError(t, err)
			for i := 0; i < count; i++ {
				require.True(t, admitter.Admit(), "admission #%d", i+1)
			}
			require.False(t, admitter.Admit())
		})
	}
}

func TestLeakyBucket_Allow(t *testing.T) {
	lb, err := NewLeakyBucket(Rate{Count: 2, Duration: time.Second}, 1)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		allow, _, allowErr := lb.Allow(ctx)
		require.NoError(t, allowErr)
		require.True(t, allow)
	}
	allow, retryAfter, err := lb.Allow(ctx)
	require.NoError(t, err)
	require.False(t, allow)
	require.Greater(t, retryAfter, time.Duration(0))
}

func TestAdmitterFunc(t *testing.T) {
	calls := 0
	var admitter Admitter = AdmitterFunc(func() bool {
		calls++
		return calls%2 == 1
	})
	require.True(t, admitter.Admit())
	require.False(t, admitter.Admit())
	require.Equal(t, 2, calls)
}
