package mq

import (
	"context"
	"sync"
	"time"
)

// Publisher keeps one broker connection for publishing and redials it when
// the connection or channel has been closed.
type Publisher struct {
	url    string
	mu     sync.Mutex
	client *Client
}

func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

func (p *Publisher) get() (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		if !p.client.IsClosed() {
			return p.client, nil
		}
		p.client.Close()
		p.client = nil
	}
	client, err := Dial(p.url)
	if err != nil {
		return nil, err
	}
	if err := client.DeclareExchanges(); err != nil {
		client.Close()
		return nil, err
	}
	p.client = client
	return p.client, nil
}

func (p *Publisher) PublishTask(ctx context.Context, task string, body []byte) error {
	client, err := p.get()
	if err != nil {
		return err
	}
	return client.PublishTask(ctx, task, body)
}

func (p *Publisher) PublishRetry(ctx context.Context, task string, body []byte, delay time.Duration) error {
	client, err := p.get()
	if err != nil {
		return err
	}
	return client.PublishRetry(ctx, task, body, delay)
}

func (p *Publisher) PublishDLQ(ctx context.Context, task string, body []byte) error {
	client, err := p.get()
	if err != nil {
		return err
	}
	return client.PublishDLQ(ctx, task, body)
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client.Close()
	p.client = nil
}
