package poller

import (
	"context"
	"sync"
	"time"

	"github.com/npezzotti/go-echo/pkg/types"
)

const typingTimeout = 5 * time.Second

// typingDebouncer turns keystrokes into typing announcements: true on the
// first keystroke and again every TypingRefresh while typing continues, false
// once after each TypingIdle pause. Announcements are sent in order by a
// single goroutine.
type typingDebouncer struct {
	s *Session

	mu     sync.Mutex
	typing bool
	sentAt time.Time
	gen    int
	timer  *time.Timer

	sends chan bool
}

func newTypingDebouncer(s *Session) *typingDebouncer {
	d := &typingDebouncer{s: s, sends: make(chan bool, 16)}
	go d.loop()
	return d
}

func (d *typingDebouncer) keystroke() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.s.now()
	announce := !d.typing || now.Sub(d.sentAt) >= d.s.cfg.TypingRefresh
	d.typing = true
	if announce {
		d.sentAt = now
		d.enqueue(true)
	}

	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.s.cfg.TypingIdle, func() { d.idle(gen) })
}

func (d *typingDebouncer) idle(gen int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// a later keystroke owns the timer now
	if gen != d.gen || !d.typing {
		return
	}
	d.typing = false
	d.enqueue(false)
}

// reset clears typing right away, as after sending a message.
func (d *typingDebouncer) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.typing {
		d.typing = false
		d.enqueue(false)
	}
}

// stop clears typing synchronously and disables the debouncer.
func (d *typingDebouncer) stop(ctx context.Context) {
	d.mu.Lock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	wasTyping := d.typing
	d.typing = false
	d.mu.Unlock()

	if wasTyping {
		if err := d.s.api.SetTyping(ctx, d.request(false)); err != nil {
			d.s.log.Printf("typing: %v", err)
		}
	}
}

func (d *typingDebouncer) enqueue(isTyping bool) {
	select {
	case d.sends <- isTyping:
	case <-d.s.ctx.Done():
	}
}

func (d *typingDebouncer) request(isTyping bool) types.TypingRequest {
	return types.TypingRequest{
		RoomCode: d.s.cfg.RoomCode,
		UserId:   d.s.cfg.UserId,
		Username: d.s.cfg.Username,
		IsTyping: isTyping,
	}
}

func (d *typingDebouncer) loop() {
	for {
		select {
		case <-d.s.ctx.Done():
			return
		case isTyping := <-d.sends:
			ctx, cancel := context.WithTimeout(d.s.ctx, typingTimeout)
			if err := d.s.api.SetTyping(ctx, d.request(isTyping)); err != nil {
				d.s.log.Printf("typing: %v", err)
			}
			cancel()
		}
	}
}
