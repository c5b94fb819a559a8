package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
)

func countingFactory(builds *int, limiters *int) AnalyzerFactory {
	gen := &generatorFake{responses: []string{"ok"}}
	return NewAnalyzerFactory(
		connectorFor(gen, nil, builds),
		func() ports.RateLimiter {
			*limiters++
			return &limiterFake{}
		},
		nil,
		AnalysisOptions{},
	)
}

func TestRegistryReusesClientForSameCredential(t *testing.T) {
	builds, limiters := 0, 0
	r := NewAnalyzerRegistry(countingFactory(&builds, &limiters))

	a := r.For(context.Background(), "s1", "key-1")
	b := r.For(context.Background(), "s1", " key-1 ")
	if a != b {
		t.Fatalf("expected cached client")
	}
	if builds != 1 || limiters != 1 {
		t.Fatalf("expected one build, got %d builds / %d limiters", builds, limiters)
	}
}

func TestRegistryCredentialChangeReplacesClient(t *testing.T) {
	builds, limiters := 0, 0
	r := NewAnalyzerRegistry(countingFactory(&builds, &limiters))

	a := r.For(context.Background(), "s1", "key-1")
	b := r.For(context.Background(), "s1", "key-2")
	if a == b {
		t.Fatalf("expected new client after credential change")
	}
	if limiters != 2 {
		t.Fatalf("expected a fresh limiter, got %d", limiters)
	}
	if _, hint, ok := r.Get("s1"); !ok || hint != "****ey-2" {
		t.Fatalf("unexpected hint %q", hint)
	}
}

func TestRegistryKeepsSessionsIndependent(t *testing.T) {
	builds, limiters := 0, 0
	r := NewAnalyzerRegistry(countingFactory(&builds, &limiters))

	if r.For(context.Background(), "s1", "key") == r.For(context.Background(), "s2", "key") {
		t.Fatalf("sessions must not share a client")
	}

	r.Forget("s1")
	if _, _, ok := r.Get("s1"); ok {
		t.Fatalf("expected forgotten session")
	}
	if _, _, ok := r.Get("s2"); !ok {
		t.Fatalf("other session must survive")
	}
}

func TestRegistryClosesReplacedAndForgottenClients(t *testing.T) {
	var generators []*closingGeneratorFake
	connect := func(context.Context, string) (ports.TextGenerator, error) {
		gen := &closingGeneratorFake{generatorFake: &generatorFake{responses: []string{"ok"}}}
		generators = append(generators, gen)
		return gen, nil
	}
	r := NewAnalyzerRegistry(NewAnalyzerFactory(connect, nil, nil, AnalysisOptions{}))

	r.For(context.Background(), "s1", "key-1")
	r.For(context.Background(), "s1", "key-2")
	if generators[0].closes() != 1 || generators[1].closes() != 0 {
		t.Fatalf("expected only the replaced client closed")
	}

	r.Forget("s1")
	if generators[1].closes() != 1 {
		t.Fatalf("expected forgotten client closed")
	}
}

func TestRegistryConcurrentCallsShareOneClient(t *testing.T) {
	var (
		mu     sync.Mutex
		builds int
	)
	connect := func(context.Context, string) (ports.TextGenerator, error) {
		mu.Lock()
		builds++
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		return &generatorFake{responses: []string{"ok"}}, nil
	}
	r := NewAnalyzerRegistry(NewAnalyzerFactory(connect, nil, nil, AnalysisOptions{}))

	const callers = 8
	clients := make([]*AnalysisClient, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			clients[i] = r.For(context.Background(), "s1", "key")
		}(i)
	}
	close(start)
	wg.Wait()

	if builds != 1 {
		t.Fatalf("expected one build, got %d", builds)
	}
	for _, c := range clients[1:] {
		if c != clients[0] {
			t.Fatalf("expected every caller to get the same client")
		}
	}
}
