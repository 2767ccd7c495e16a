package chatclient

import (
	"context"
	"sync"
	"testing"

	"github.com/cwrk-planet/tripchat/pkg/chatproto"

	"github.com/stretchr/testify/require"
)

// fakeTransport держит события в памяти, они подаются вручную через fire.
type fakeTransport struct {
	mu       sync.Mutex
	opens    int
	closes   int
	emitted  []chatproto.Frame
	openErr  error
	emitErr  error
	handlers map[string]*listeners[chatproto.Frame]
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]*listeners[chatproto.Frame])}
}

func (f *fakeTransport) Open(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return f.openErr
}

func (f *fakeTransport) Emit(event string, data any) error {
	fr, err := chatproto.NewFrame(event, data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emitted = append(f.emitted, fr)
	return nil
}

func (f *fakeTransport) On(event string, h func(chatproto.Frame)) *Subscription {
	f.mu.Lock()
	l, ok := f.handlers[event]
	if !ok {
		l = &listeners[chatproto.Frame]{}
		f.handlers[event] = l
	}
	f.mu.Unlock()
	return l.add(h)
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeTransport) fire(t *testing.T, event string, data any) {
	t.Helper()
	fr, err := chatproto.NewFrame(event, data)
	require.NoError(t, err)

	f.mu.Lock()
	l := f.handlers[event]
	f.mu.Unlock()
	if l != nil {
		l.emit(fr)
	}
}

func (f *fakeTransport) sent(event string) []chatproto.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []chatproto.Frame
	for _, fr := range f.emitted {
		if fr.Event == event {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeTransport) counts() (opens, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes
}

func (f *fakeTransport) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, l := range f.handlers {
		n += l.len()
	}
	return n
}
