package telegram

import (
	"context"
	"log"
	"sync"
	"time"
)

// pollRetryDelay is how long to back off after a failed getUpdates
// before polling again.
const pollRetryDelay = 3 * time.Second

// chatQueueDepth bounds each per-chat delivery queue. A chat that
// floods faster than its handler drains blocks only its own queue.
const chatQueueDepth = 16

// Handler processes one incoming message.
type Handler func(ctx context.Context, msg Message)

// Poller long-polls for updates and delivers messages to a handler.
// Messages from the same chat are delivered in arrival order; distinct
// chats proceed independently.
type Poller struct {
	client  *Client
	timeout time.Duration
	handle  Handler

	mu     sync.Mutex
	queues map[int64]chan Message
	wg     sync.WaitGroup
}

// NewPoller creates a poller delivering to handle. timeout is the
// server-side long-poll hold time.
func NewPoller(client *Client, timeout time.Duration, handle Handler) *Poller {
	return &Poller{
		client:  client,
		timeout: timeout,
		handle:  handle,
		queues:  make(map[int64]chan Message),
	}
}

// Run polls until ctx is cancelled, then waits for in-flight handlers
// to finish.
func (p *Poller) Run(ctx context.Context) error {
	defer p.wg.Wait()
	defer p.closeQueues()

	var offset int64
	for {
		updates, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("telegram poll: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollRetryDelay):
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			if upd.Message == nil || upd.Message.Text == "" {
				continue
			}
			p.deliver(ctx, *upd.Message)
		}
	}
}

// deliver enqueues a message on its chat's queue, starting the chat
// worker on first use.
func (p *Poller) deliver(ctx context.Context, msg Message) {
	p.mu.Lock()
	q, ok := p.queues[msg.Chat.ID]
	if !ok {
		q = make(chan Message, chatQueueDepth)
		p.queues[msg.Chat.ID] = q
		p.wg.Add(1)
		go p.chatWorker(ctx, q)
	}
	p.mu.Unlock()

	select {
	case q <- msg:
	case <-ctx.Done():
	}
}

// chatWorker drains one chat's queue in order.
func (p *Poller) chatWorker(ctx context.Context, q chan Message) {
	defer p.wg.Done()
	for msg := range q {
		p.handle(ctx, msg)
	}
}

func (p *Poller) closeQueues() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, q := range p.queues {
		close(q)
		delete(p.queues, id)
	}
}
