package service

import (
	"context"
	"sync"

	"ai-consultation-be/internal/dto"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []dto.ConsultationEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event dto.ConsultationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
