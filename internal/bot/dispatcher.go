package bot

import (
	"context"
	"sync"

	"loyaltybot/internal/models"
)

// dispatcher keeps updates of one chat in order and lets different chats run in parallel.
// A chat gets a goroutine while it has pending updates; the goroutine exits once its queue drains.
type dispatcher struct {
	mu     sync.Mutex
	queues map[int64][]models.Inbound
	wg     sync.WaitGroup
	handle func(ctx context.Context, in models.Inbound)
}

func newDispatcher(handle func(ctx context.Context, in models.Inbound)) *dispatcher {
	return &dispatcher{queues: make(map[int64][]models.Inbound), handle: handle}
}

func (d *dispatcher) dispatch(ctx context.Context, in models.Inbound) {
	d.mu.Lock()
	pending, active := d.queues[in.ChatID]
	d.queues[in.ChatID] = append(pending, in)
	d.mu.Unlock()
	if active {
		return
	}

	d.wg.Add(1)
	go d.drain(ctx, in.ChatID)
}

func (d *dispatcher) drain(ctx context.Context, chatID int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		pending := d.queues[chatID]
		if len(pending) == 0 {
			delete(d.queues, chatID)
			d.mu.Unlock()
			return
		}
		in := pending[0]
		d.queues[chatID] = pending[1:]
		d.mu.Unlock()

		d.handle(ctx, in)
	}
}

func (d *dispatcher) wait() {
	d.wg.Wait()
}

func (d *dispatcher) active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}
