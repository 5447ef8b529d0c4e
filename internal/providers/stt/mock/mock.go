// Package mock provides a scripted STT provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/meetlens/meetlens/internal/providers/stt"
)

// Call records one Transcribe invocation.
type Call struct {
	AudioLen int
	Request  stt.Request
}

// Provider replays scripted results in order. When the script is exhausted
// the last entry repeats. A nil result with a non-nil error simulates an
// engine failure.
type Provider struct {
	mu      sync.Mutex
	script  []Scripted
	calls   []Call
	nowCall int
}

type Scripted struct {
	Result *stt.Result
	Err    error
}

func New(script ...Scripted) *Provider {
	return &Provider{script: script}
}

func (p *Provider) Transcribe(_ context.Context, audio []byte, req stt.Request) (*stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{AudioLen: len(audio), Request: req})

	if len(p.script) == 0 {
		return &stt.Result{}, nil
	}
	idx := p.nowCall
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	p.nowCall++
	s := p.script[idx]
	return s.Result, s.Err
}

func (p *Provider) Close() error { return nil }

// Calls returns a copy of everything recorded so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}
