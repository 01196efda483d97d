package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/moodtunes/internal/catalog"
)

// mapError translates Spotify client errors into catalog sentinels.
// Anything that is not a recognized API status is treated as unavailable.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	status := 0
	var apiErr spotify.Error
	var apiErrPtr *spotify.Error
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Status
	case errors.As(err, &apiErrPtr):
		status = apiErrPtr.Status
	}

	var sentinel error
	switch {
	case status == http.StatusUnauthorized:
		sentinel = catalog.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		sentinel = catalog.ErrRateLimited
	case status == http.StatusNotFound:
		sentinel = catalog.ErrNotFound
	case errors.Is(err, context.Canceled):
		return err
	default:
		sentinel = catalog.ErrUnavailable
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
