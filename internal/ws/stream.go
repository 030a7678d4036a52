package ws

import (
	"context"
	"sync"

	"ecomap-navigation/internal/navigation"
)

// positionFeed bridges incoming position messages to the navigation
// session's watch channel. One subscriber at a time; a new Watch replaces
// the previous subscription.
type positionFeed struct {
	mu sync.Mutex
	ch chan navigation.Position
}

func newPositionFeed() *positionFeed {
	return &positionFeed{}
}

func (f *positionFeed) Watch(ctx context.Context) (<-chan navigation.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ch != nil {
		close(f.ch)
	}
	ch := make(chan navigation.Position, 8)
	f.ch = ch

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		if f.ch == ch {
			close(ch)
			f.ch = nil
		}
		f.mu.Unlock()
	}()

	return ch, nil
}

// Publish forwards a fix to the active subscriber, dropping it when the
// subscriber lags or nobody is watching.
func (f *positionFeed) Publish(pos navigation.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ch == nil {
		return
	}
	select {
	case f.ch <- pos:
	default:
	}
}
