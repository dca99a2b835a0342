/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ringqueue

import (
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, err := New[int](-1)
	require.EqualError(t, err, "capacity must be greater or equal to 0, got -1")

	q, err := New[int](3)
	require.NoError(t, err)
	require.Equal(t, 3, q.Cap())
	require.True(t, q.IsEmpty())

	_, ok := q.Poll()
	require.False(t, ok)
	_, ok = q.Peek()
	require.False(t, ok)
}

func TestQueue_OverwriteOldest(t *testing.T) {
	var evicted []string
	q, err := NewWithOpts[string](5, Opts[string]{EvictionHandler: func(item string) {
		evicted = append(evicted, item)
	}})
	require.NoError(t, err)

	for _, item := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		require.True(t, q.Offer(item))
		require.LessOrEqual(t, q.Len(), q.Cap())
	}

	head, ok := q.Peek()
	require.True(t, ok)
	require.Equal(t, "C", head)
	require.Equal(t, []string{"C", "D", "E", "F", "G"}, q.Snapshot())
	require.Equal(t, []string{"A", "B"}, evicted)

	var polled []string
	for item, ok := q.Poll(); ok; item, ok = q.Poll() {
		polled = append(polled, item)
	}
	require.Equal(t, []string{"C", "D", "E", "F", "G"}, polled)
	require.True(t, q.IsEmpty())
}

func TestQueue_KeepsMostRecentItems(t *testing.T) {
	const capacity = 4
	q, err := New[int](capacity)
	require.NoError(t, err)

	var offered []int
	for i := 0; i < 3*capacity+1; i++ {
		q.Offer(i)
		offered = append(offered, i)

		want := offered
		if len(want) > capacity {
			want = want[len(want)-capacity:]
		}
		require.Equal(t, want, q.Snapshot())
	}
}

func TestQueue_InterleavedOfferPoll(t *testing.T) {
	q, err := New[int](3)
	require.NoError(t, err)

	q.Offer(1)
	q.Offer(2)
	item, ok := q.Poll()
	require.True(t, ok)
	require.Equal(t, 1, item)

	q.Offer(3)
	q.Offer(4)
	q.Offer(5) // evicts 2
	require.Equal(t, []int{3, 4, 5}, q.Snapshot())

	item, _ = q.Poll()
	require.Equal(t, 3, item)
	q.Offer(6)
	require.Equal(t, []int{4, 5, 6}, q.Snapshot())
}

func TestQueue_ZeroCapacity(t *testing.T) {
	var evicted []int
	q, err := NewWithOpts[int](0, Opts[int]{EvictionHandler: func(item int) { evicted = append(evicted, item) }})
	require.NoError(t, err)

	require.True(t, q.Offer(42))
	require.Equal(t, 0, q.Len())
	require.Equal(t, []int{42}, evicted)
	_, ok := q.Poll()
	require.False(t, ok)
	require.Equal(t, 7, q.PollOffer(7))
}

func TestQueue_PollOffer(t *testing.T) {
	q, err := New[string](2)
	require.NoError(t, err)

	require.Equal(t, "x", q.PollOffer("x"), "empty queue returns the given item")
	require.True(t, q.IsEmpty())

	q.Offer("a")
	q.Offer("b")
	require.Equal(t, "a", q.PollOffer("c"), "full queue returns the head without evicting")
	require.Equal(t, []string{"b", "c"}, q.Snapshot())
}

func TestQueue_Range(t *testing.T) {
	q, err := New[int](10)
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		q.Offer(i)
	}

	var seen []int
	q.Range(func(item int) bool {
		seen = append(seen, item)
		q.Offer(item * 100) // mutation during iteration must not be observed
		return item < 3
	})
	require.Equal(t, []int{1, 2, 3}, seen)
	require.Equal(t, 8, q.Len())
}

func TestQueue_Clear(t *testing.T) {
	q, err := New[int](3)
	require.NoError(t, err)
	q.Offer(1)
	q.Offer(2)
	require.Equal(t, 2, q.Clear())
	require.True(t, q.IsEmpty())
	q.Offer(3)
	require.Equal(t, []int{3}, q.Snapshot())
}

func TestQueue_Metrics(t *testing.T) {
	metrics := NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{Namespace: "test"})
	q, err := NewWithOpts[int](2, Opts[int]{MetricsCollector: metrics})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		q.Offer(i)
	}
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.ItemsAmount))
	require.Equal(t, 3.0, testutil.ToFloat64(metrics.EvictionsTotal))

	q.Poll()
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ItemsAmount))
}

func TestQueue_Concurrent(t *testing.T) {
	const (
		capacity  = 16
		producers = 8
		perWorker = 1000
	)
	q, err := New[string](capacity)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				q.Offer(strconv.Itoa(p) + ":" + strconv.Itoa(i))
				if i%3 == 0 {
					q.Poll()
				}
				assert.LessOrEqual(t, len(q.Snapshot()), capacity)
			}
		}(p)
	}
	wg.Wait()
	require.LessOrEqual(t, q.Len(), capacity)

	// Items of each producer must remain in their offer order.
	last := map[string]int{}
	q.Range(func(item string) bool {
		producer, seq, _ := strings.Cut(item, ":")
		i, err := strconv.Atoi(seq)
		require.NoError(t, err)
		if prev, ok := last[producer]; ok {
			require.Greater(t, i, prev)
		}
		last[producer] = i
		return true
	})
}
