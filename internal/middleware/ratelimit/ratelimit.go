package ratelimit

import (
	"sync"
	"time"
)

// Limiter throttles write requests per client IP using a fixed
// one-minute window.
type Limiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once

	requestsPerMinute int
	cleanupInterval   time.Duration
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewLimiter creates a new rate limiter
func NewLimiter(config Config) *Limiter {
	if config.RequestsPerMinute <= 0 {
		config = DefaultConfig()
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	rl := &Limiter{
		clients:           make(map[string]*clientInfo),
		stopCleanup:       make(chan struct{}),
		requestsPerMinute: config.RequestsPerMinute,
		cleanupInterval:   config.CleanupInterval,
	}
	go rl.startCleanup()
	return rl
}

// Allow reports whether a request from the given IP is within the limit.
func (rl *Limiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// A fresh window starts once the last request is over a minute old.
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	client.requests++
	client.lastRequest = now

	return client.requests <= rl.requestsPerMinute
}

func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes clients that have been idle for 10 minutes.
func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// ActiveClients returns the number of currently tracked clients
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
