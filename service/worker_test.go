/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/log/logtest"
)

func TestPeriodicWorker_Run(t *testing.T) {
	t.Run("stop by context", func(t *testing.T) {
		var c atomic.Int32
		pw := NewPeriodicWorker("counter", WorkerFunc(func(ctx context.Context) error {
			c.Inc()
			return nil
		}), time.Millisecond*20, log.NewDisabledLogger())

		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*200)
		defer cancel()
		require.NoError(t, pw.Run(ctx))
		require.GreaterOrEqual(t, int(c.Load()), 3)
	})

	t.Run("stop by ErrPeriodicWorkerStop", func(t *testing.T) {
		c := 0
		pw := NewPeriodicWorker("counter", WorkerFunc(func(ctx context.Context) error {
			c++
			if c == 2 {
				return ErrPeriodicWorkerStop
			}
			return nil
		}), time.Millisecond*10, nil)
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		require.NoError(t, pw.Run(ctx))
		require.Equal(t, 2, c)
		require.NoError(t, ctx.Err())
	})

	t.Run("initial delay", func(t *testing.T) {
		var c atomic.Int32
		pw := NewPeriodicWorkerWithOpts("counter", WorkerFunc(func(ctx context.Context) error {
			c.Inc()
			return nil
		}), time.Millisecond*10, nil, PeriodicWorkerOpts{InitialDelay: time.Hour})
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*100)
		defer cancel()
		require.NoError(t, pw.Run(ctx))
		require.Equal(t, int32(0), c.Load())
	})

	t.Run("errors are logged and delay is adjusted", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		runErr := errors.New("run failed")
		var delays []time.Duration
		c := 0
		pw := NewPeriodicWorkerWithOpts("failing", WorkerFunc(func(ctx context.Context) error {
			c++
			if c == 1 {
				return runErr
			}
			if c == 3 {
				return ErrPeriodicWorkerStop
			}
			return nil
		}), time.Millisecond, logRecorder, PeriodicWorkerOpts{IntervalDelayFunc: func(err error) time.Duration {
			d := time.Millisecond
			if err != nil {
				d = time.Millisecond * 20
			}
			delays = append(delays, d)
			return d
		}})
		require.NoError(t, pw.Run(context.Background()))
		require.Equal(t, []time.Duration{time.Millisecond * 20, time.Millisecond}, delays)

		entry, found := logRecorder.FindEntry("periodic worker run failed")
		require.True(t, found)
		require.Equal(t, log.LevelError, entry.Level)
		workerField, found := entry.FindField("worker")
		require.True(t, found)
		require.Equal(t, "failing", string(workerField.Bytes))
	})
}
