package handler

import (
	"errors"
	"io"
)

// DefaultMaxResponseBodyBytes caps origin response bodies relayed to a
// client, protecting the handler from an origin that streams unbounded
// data.
const DefaultMaxResponseBodyBytes int64 = 10 * 1024 * 1024

var ErrResponseBodyTooLarge = errors.New("handler: response body too large")

// readLimitedBody reads up to maxBytes from reader, returning
// ErrResponseBodyTooLarge if more was available.
func readLimitedBody(reader io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(reader)
	}

	limited := io.LimitReader(reader, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return body, err
	}
	if int64(len(body)) > maxBytes {
		return body[:maxBytes], ErrResponseBodyTooLarge
	}
	return body, nil
}
