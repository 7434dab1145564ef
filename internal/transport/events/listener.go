// Package events turns gateway callbacks into an ordered event stream.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

const defaultBuffer = 256

// Session is the subset of *discordgo.Session the listener drives.
type Session interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
}

type Listener struct {
	logger  *slog.Logger
	session Session
	buffer  int

	ready    atomic.Bool
	mu       sync.Mutex
	removers []func()
}

func NewListener(logger *slog.Logger, session Session, buffer int) *Listener {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Listener{logger: logger, session: session, buffer: buffer}
}

// Ready reports whether the gateway connection is up.
func (l *Listener) Ready() bool { return l.ready.Load() }

// Start registers the handlers, opens the connection and returns the event
// channel. The channel is closed after ctx is done and the session closed.
func (l *Listener) Start(ctx context.Context) (<-chan any, error) {
	updates := make(chan any, l.buffer)
	var (
		sendMu sync.RWMutex
		closed bool
	)

	push := func(ev any) {
		sendMu.RLock()
		defer sendMu.RUnlock()
		if closed {
			return
		}
		select {
		case updates <- ev:
		case <-ctx.Done():
		}
	}

	l.mu.Lock()
	l.removers = append(l.removers,
		l.session.AddHandler(func(_ *discordgo.Session, e *discordgo.Ready) {
			l.ready.Store(true)
			push(e)
		}),
		l.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
			l.ready.Store(true)
		}),
		l.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
			l.ready.Store(false)
			l.logger.Warn("Gateway disconnected")
		}),
		l.session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildCreate) { push(e) }),
		l.session.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageCreate) { push(e) }),
		l.session.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageReactionAdd) { push(e) }),
		l.session.AddHandler(func(_ *discordgo.Session, e *discordgo.PresenceUpdate) { push(e) }),
	)
	l.mu.Unlock()

	l.logger.Info("Opening gateway connection")
	if err := l.session.Open(); err != nil {
		l.removeHandlers()
		return nil, fmt.Errorf("failed to open gateway: %w", err)
	}

	go func() {
		<-ctx.Done()
		l.ready.Store(false)
		l.removeHandlers()
		if err := l.session.Close(); err != nil {
			l.logger.Error("Failed to close gateway", "error", err)
		}
		sendMu.Lock()
		closed = true
		close(updates)
		sendMu.Unlock()
	}()

	return updates, nil
}

func (l *Listener) removeHandlers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, remove := range l.removers {
		remove()
	}
	l.removers = nil
}
