// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUCacheReadThrough(t *testing.T) {
	require := require.New(t)

	cache := NewLRUCache[uint64, string](2)
	fetchCount := 0
	fetchFunc := func(key uint64) (string, error) {
		fetchCount++
		return "receipt", nil
	}

	val, err := cache.Get(1, fetchFunc, false)
	require.NoError(err)
	require.Equal("receipt", val)
	require.Equal(1, fetchCount)

	// Hit, no fetch
	_, err = cache.Get(1, fetchFunc, false)
	require.NoError(err)
	require.Equal(1, fetchCount)

	// Invalidate forces a fetch
	_, err = cache.Get(1, fetchFunc, true)
	require.NoError(err)
	require.Equal(2, fetchCount)
}

func TestLRUCacheEviction(t *testing.T) {
	require := require.New(t)

	cache := NewLRUCache[uint64, uint64](2)
	fetches := make(map[uint64]int)
	fetchFunc := func(key uint64) (uint64, error) {
		fetches[key]++
		return key * 10, nil
	}

	for _, key := range []uint64{1, 2, 3} {
		val, err := cache.Get(key, fetchFunc, false)
		require.NoError(err)
		require.Equal(key*10, val)
	}

	// Capacity 2: key 1 was evicted and must be fetched again
	_, err := cache.Get(1, fetchFunc, false)
	require.NoError(err)
	require.Equal(2, fetches[1])
}
