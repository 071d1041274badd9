package notifier

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"perpbot/internal/logger"
	"perpbot/internal/pkg/circuit"
)

var log = logger.With("notify")

const (
	defaultQueueSize   = 256
	defaultSendTimeout = 10 * time.Second
	pollInterval       = time.Second
)

// Notification 是队列元素；零值是关闭哨兵。
type Notification struct {
	Text     string
	Keyboard Keyboard
}

func (n Notification) sentinel() bool {
	return n.Text == "" && n.Keyboard == nil
}

type DispatcherOptions struct {
	QueueSize   int
	SendTimeout time.Duration
	// Breaker 打开时跳过主通道，直接走备用通道。
	Breaker *circuit.Breaker
}

// Dispatcher 以单个消费者按 FIFO 投递通知，每个接收人独立尝试主通道与备用通道。
type Dispatcher struct {
	sender     Sender
	recipients []string
	timeout    time.Duration
	breaker    *circuit.Breaker
	queue      chan Notification

	mu      sync.Mutex
	running atomic.Bool
	done    chan struct{}

	dropped atomic.Int64
}

var _ Notifier = (*Dispatcher)(nil)

// NewDispatcher 创建分发器；sender 为 nil 时只写日志。
func NewDispatcher(sender Sender, recipients []string, opts DispatcherOptions) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	ids := make([]string, 0, len(recipients))
	for _, id := range recipients {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return &Dispatcher{
		sender:     sender,
		recipients: ids,
		timeout:    opts.SendTimeout,
		breaker:    opts.Breaker,
		queue:      make(chan Notification, opts.QueueSize),
	}
}

// Start launches the consumer. It is a no-op while already running.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return
	}
	d.running.Store(true)
	d.done = make(chan struct{})
	go d.consume(d.done)
}

func (d *Dispatcher) Running() bool {
	return d.running.Load()
}

// Enqueue 非阻塞入队；空文本或队列满时丢弃并返回 false。
func (d *Dispatcher) Enqueue(text string, kb Keyboard) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	select {
	case d.queue <- Notification{Text: text, Keyboard: kb}:
		return true
	default:
		d.dropped.Add(1)
		log.Warnf("queue full, dropping message: %.60q", text)
		return false
	}
}

func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Stop 投递哨兵并最多等待 timeout，然后丢弃队列中剩余的消息。返回丢弃条数。
func (d *Dispatcher) Stop(timeout time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return d.drain()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case d.queue <- Notification{}:
		select {
		case <-d.done:
		case <-timer.C:
			log.Warnf("consumer did not finish within %s", timeout)
		}
	case <-timer.C:
		log.Warnf("could not enqueue shutdown sentinel within %s", timeout)
	}
	d.running.Store(false)
	return d.drain()
}

func (d *Dispatcher) drain() int {
	n := 0
	for {
		select {
		case msg := <-d.queue:
			if !msg.sentinel() {
				n++
			}
		default:
			if n > 0 {
				log.Infof("discarded %d pending message(s)", n)
			}
			return n
		}
	}
}

func (d *Dispatcher) consume(done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case msg := <-d.queue:
			if msg.sentinel() {
				return
			}
			d.deliver(msg)
			if !d.running.Load() {
				return
			}
		case <-ticker.C:
			if !d.running.Load() {
				return
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Notification) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("deliver panic: %v", r)
		}
	}()
	if d.sender == nil || len(d.recipients) == 0 {
		log.Infof("notification:\n%s", msg.Text)
		return
	}
	for _, chatID := range d.recipients {
		d.deliverTo(chatID, msg)
	}
}

func (d *Dispatcher) deliverTo(chatID string, msg Notification) {
	if d.breaker.Allow() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sender.Send(ctx, chatID, msg.Text, msg.Keyboard)
		cancel()
		if err == nil {
			d.breaker.RecordSuccess()
			return
		}
		d.breaker.RecordFailure()
		log.Warnf("primary send to %s failed: %v", chatID, err)
	} else {
		log.Debugf("primary channel open-circuited, using fallback for %s", chatID)
	}
	fp, ok := d.sender.(FallbackProvider)
	if !ok {
		return
	}
	fb := fp.Fallback()
	if fb == nil {
		return
	}
	fbCtx, fbCancel := context.WithTimeout(context.Background(), d.timeout)
	defer fbCancel()
	if err := fb.Send(fbCtx, chatID, msg.Text, msg.Keyboard); err != nil {
		log.Errorf("fallback send to %s failed: %v", chatID, err)
		return
	}
	log.Infof("fallback delivered to %s", chatID)
}
