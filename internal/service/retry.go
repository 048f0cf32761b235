package service

import (
	"errors"

	"github.com/noah-isme/gema-review-engine/internal/repository"
)

const defaultStaleWriteRetries = 3

// withStaleRetry re-runs op while it fails with repository.ErrStaleWrite.
// op must reload the entity it mutates on every attempt.
func withStaleRetry(attempts int, op func() error) error {
	if attempts <= 0 {
		attempts = defaultStaleWriteRetries
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = op()
		if !errors.Is(err, repository.ErrStaleWrite) {
			return err
		}
	}
	return err
}
