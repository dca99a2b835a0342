/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestWorkerUnit_StartStop(t *testing.T) {
	t.Run("stop not gracefully", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			<-release
			return nil
		}))
		startExit := startAsync(unit, make(chan error, 1))
		require.NoError(t, unit.Stop(false))
		select {
		case <-startExit:
			require.Fail(t, "worker should still be running")
		case <-time.After(time.Millisecond * 50):
		}
	})

	t.Run("stop gracefully with timeout", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		unit := NewWorkerUnitWithOpts(WorkerFunc(func(ctx context.Context) error {
			<-release
			return nil
		}), WorkerUnitOpts{GracefulStopTimeout: time.Millisecond * 100})
		startAsync(unit, make(chan error, 1))
		require.Eventually(t, unit.started.Load, time.Second, time.Millisecond)
		require.ErrorIs(t, unit.Stop(true), ErrStopTimeoutExceeded)
	})

	t.Run("stop gracefully without timeout", func(t *testing.T) {
		var answer atomic.Int32
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(time.Millisecond * 50)
			answer.Store(42)
			return nil
		}))
		startAsync(unit, make(chan error, 1))
		require.Eventually(t, unit.started.Load, time.Second, time.Millisecond)
		require.NoError(t, unit.Stop(true))
		require.Equal(t, int32(42), answer.Load())
	})

	t.Run("stop before start", func(t *testing.T) {
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error { return nil }))
		require.NoError(t, unit.Stop(true))
	})

	t.Run("worker error is fatal", func(t *testing.T) {
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error { return context.DeadlineExceeded }))
		fatalErr := make(chan error, 1)
		unit.Start(fatalErr)
		require.ErrorIs(t, <-fatalErr, context.DeadlineExceeded)
	})
}
