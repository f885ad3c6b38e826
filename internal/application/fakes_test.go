package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/bnema/azad-hub/internal/domain"
)

var errDeadChannel = errors.New("channel closed")

type recordingChannel struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (c *recordingChannel) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, append([]byte(nil), payload...))
	return nil
}

func (c *recordingChannel) Frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, frame := range c.frames {
		out = append(out, string(frame))
	}
	return out
}

func (c *recordingChannel) Actions() []domain.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Action, 0, len(c.frames))
	for _, frame := range c.frames {
		var head struct {
			Action domain.Action `json:"action"`
		}
		_ = json.Unmarshal(frame, &head)
		out = append(out, head.Action)
	}
	return out
}

type panickingChannel struct{}

func (panickingChannel) Send([]byte) error {
	panic("socket gone")
}

type fakeEntitlement struct {
	mu         sync.Mutex
	authorised bool
	err        error
	calls      int
	release    chan struct{}
}

func (f *fakeEntitlement) CheckAuthorised(ctx context.Context) (bool, error) {
	f.mu.Lock()
	f.calls++
	release := f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorised, f.err
}

func (f *fakeEntitlement) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memorySettings struct {
	mu     sync.Mutex
	values map[string]bool
	err    error
}

func (s *memorySettings) StoreBoolean(_ context.Context, key string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.values == nil {
		s.values = map[string]bool{}
	}
	s.values[key] = value
	return nil
}

func (s *memorySettings) LoadBoolean(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return false, domain.ErrSettingNotFound
	}
	return value, nil
}

type fakeBilling struct {
	mu    sync.Mutex
	shown int
	err   error
}

func (b *fakeBilling) DisplayPaymentUI(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shown++
	return b.err
}

func (b *fakeBilling) Shown() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shown
}

type fakeHost struct {
	mu             sync.Mutex
	removedCookies []string
	openedTabs     []string
	err            error
}

func (h *fakeHost) RemoveCookie(_ context.Context, url string, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.removedCookies = append(h.removedCookies, url+" "+name)
	return nil
}

func (h *fakeHost) OpenTab(_ context.Context, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.openedTabs = append(h.openedTabs, url)
	return nil
}

func (h *fakeHost) Removed() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.removedCookies...)
}

func (h *fakeHost) Opened() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.openedTabs...)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}
