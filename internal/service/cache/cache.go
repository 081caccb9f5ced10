package cache

import "time"

// ResponseCache holds serialized API responses for a few seconds so bursts
// against the same client id are absorbed before the estimate path runs.
type ResponseCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
