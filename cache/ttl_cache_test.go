// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLCacheSingleKey(t *testing.T) {
	tests := []struct {
		name           string
		skipCache      bool
		waitBeforeNext time.Duration
		expectedCount  int
	}{
		{
			name:          "fresh cache, fetch",
			expectedCount: 1,
		},
		{
			name:          "use cache, no fetch",
			expectedCount: 1,
		},
		{
			name:          "invalidate, fetch",
			skipCache:     true,
			expectedCount: 2,
		},
		{
			name:           "ttl expired, fetch",
			waitBeforeNext: 2 * time.Second,
			expectedCount:  3,
		},
	}
	cache := NewTTLCache[uint64, string](1 * time.Second)
	fetchCount := 0
	fetchFunc := func(_ uint64) (string, error) {
		fetchCount++
		return "Team Alpha", nil
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			if tt.waitBeforeNext > 0 {
				time.Sleep(tt.waitBeforeNext)
			}

			val, err := cache.Get(7, fetchFunc, tt.skipCache)
			require.NoError(err)
			require.Equal("Team Alpha", val)
			require.Equal(tt.expectedCount, fetchCount)
		})
	}
}

func TestTTLCacheFetchError(t *testing.T) {
	require := require.New(t)

	cache := NewTTLCache[uint64, string](time.Minute)
	fetchErr := errors.New("room does not exist")
	_, err := cache.Get(404, func(uint64) (string, error) {
		return "", fetchErr
	}, false)
	require.ErrorIs(err, fetchErr)

	// A failed fetch must not poison the cache
	val, err := cache.Get(404, func(uint64) (string, error) {
		return "General", nil
	}, false)
	require.NoError(err)
	require.Equal("General", val)
}

func TestTTLCacheConcurrentFetchDeduplicated(t *testing.T) {
	require := require.New(t)

	cache := NewTTLCache[uint64, string](time.Minute)
	var (
		fetchCount int
		mu         sync.Mutex
		wg         sync.WaitGroup
	)
	fetchFunc := func(uint64) (string, error) {
		mu.Lock()
		fetchCount++
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		return "ok", nil
	}

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, err := cache.Get(1, fetchFunc, false)
			require.NoError(err)
			require.Equal("ok", val)
		}()
	}
	wg.Wait()

	require.Equal(1, fetchCount)
}
