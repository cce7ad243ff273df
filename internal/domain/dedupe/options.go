package dedupe

import "time"

// Option configures Keys.
type Option func(*Keys)

// WithMaxSize bounds the number of remembered keys. Zero or less means
// unbounded.
func WithMaxSize(n int) Option {
	return func(k *Keys) {
		k.maxSize = n
	}
}

// WithTTL forgets keys after d.
func WithTTL(d time.Duration) Option {
	return func(k *Keys) {
		k.ttl = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(k *Keys) {
		if now != nil {
			k.now = now
		}
	}
}
