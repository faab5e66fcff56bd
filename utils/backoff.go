// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/luxfi/log"
)

// WithRetriesTimeout runs the operation under an exponential backoff until
// it succeeds or the timeout limit is reached.
func WithRetriesTimeout(
	logger log.Logger,
	operation backoff.Operation,
	timeout time.Duration,
	description string,
) error {
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(timeout),
	)
	notify := func(err error, _ time.Duration) {
		logger.Warn(
			"operation failed, retrying...",
			log.String("operation", description),
			log.Err(err),
		)
	}
	return backoff.RetryNotify(operation, expBackOff, notify)
}
