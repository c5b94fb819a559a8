package usecase

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
)

// AnalyzerFactory builds a fresh AnalysisClient for one credential.
type AnalyzerFactory func(ctx context.Context, credential string) *AnalysisClient

// NewAnalyzerFactory binds the provider connector. Each client gets its own
// limiter from limiters and its own executor from executors, so neither
// pacing nor breaker state is shared between clients.
func NewAnalyzerFactory(
	connect ports.ProviderConnector,
	limiters ports.RateLimiterFactory,
	executors ports.CallExecutorFactory,
	opts AnalysisOptions,
) AnalyzerFactory {
	return func(ctx context.Context, credential string) *AnalysisClient {
		var limiter ports.RateLimiter
		if limiters != nil {
			limiter = limiters()
		}
		var executor ports.CallExecutor
		if executors != nil {
			executor = executors()
		}
		return NewAnalysisClient(ctx, credential, connect, limiter, executor, opts)
	}
}

type registryEntry struct {
	credential string
	client     *AnalysisClient
}

// AnalyzerRegistry keeps one AnalysisClient per session, so pacing is per
// session and never global.
type AnalyzerRegistry struct {
	factory AnalyzerFactory
	builds  singleflight.Group

	mu      sync.Mutex
	entries map[string]registryEntry
}

func NewAnalyzerRegistry(factory AnalyzerFactory) *AnalyzerRegistry {
	return &AnalyzerRegistry{
		factory: factory,
		entries: make(map[string]registryEntry),
	}
}

// For returns the session's client, building a new one when the session has
// none or the credential changed. Concurrent callers for the same session and
// credential share one build. A replaced client is closed.
func (r *AnalyzerRegistry) For(ctx context.Context, sessionID, credential string) *AnalysisClient {
	credential = strings.TrimSpace(credential)
	if client, ok := r.lookup(sessionID, credential); ok {
		return client
	}

	v, _, _ := r.builds.Do(sessionID+"\x00"+credential, func() (any, error) {
		if client, ok := r.lookup(sessionID, credential); ok {
			return client, nil
		}
		// Built outside the lock: construction sends a probe to the provider.
		client := r.factory(ctx, credential)

		r.mu.Lock()
		previous, hadPrevious := r.entries[sessionID]
		r.entries[sessionID] = registryEntry{credential: credential, client: client}
		r.mu.Unlock()

		if hadPrevious {
			_ = previous.client.Close()
		}
		return client, nil
	})
	return v.(*AnalysisClient)
}

func (r *AnalyzerRegistry) lookup(sessionID, credential string) (*AnalysisClient, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[sessionID]
	if !ok || entry.credential != credential {
		return nil, false
	}
	return entry.client, true
}

// Get returns the client already bound to the session.
func (r *AnalyzerRegistry) Get(sessionID string) (*AnalysisClient, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[sessionID]
	if !ok {
		return nil, "", false
	}
	return entry.client, maskCredential(entry.credential), true
}

// Forget drops the session's client and releases its connection.
func (r *AnalyzerRegistry) Forget(sessionID string) {
	r.mu.Lock()
	entry, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.mu.Unlock()
	if ok {
		_ = entry.client.Close()
	}
}

func maskCredential(credential string) string {
	if credential == "" {
		return ""
	}
	runes := []rune(credential)
	if len(runes) <= 4 {
		return "****"
	}
	return "****" + string(runes[len(runes)-4:])
}
