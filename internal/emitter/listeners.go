// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package emitter

import (
	"slices"
	"sync"

	"github.com/tomtom215/agentstream/internal/events"
)

// Handler receives emitted events. It runs on the emitting goroutine.
type Handler func(events.Event)

// ListenerID identifies a registered listener.
type ListenerID uint64

// ListenerOption configures a listener.
type ListenerOption func(*listener)

// WithFilter delivers only events for which pred returns true.
func WithFilter(pred func(events.Event) bool) ListenerOption {
	return func(l *listener) { l.filter = pred }
}

type listener struct {
	id      ListenerID
	tag     events.Type
	handler Handler
	filter  func(events.Event) bool
}

type listeners struct {
	mu     sync.RWMutex
	nextID ListenerID
	byTag  map[events.Type][]listener
}

func newListeners() *listeners {
	return &listeners{byTag: make(map[events.Type][]listener)}
}

func (ls *listeners) add(tag events.Type, h Handler, opts ...ListenerOption) ListenerID {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.nextID++
	l := listener{id: ls.nextID, tag: tag, handler: h}
	for _, opt := range opts {
		opt(&l)
	}
	ls.byTag[tag] = append(ls.byTag[tag], l)
	return l.id
}

func (ls *listeners) remove(id ListenerID) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for tag, list := range ls.byTag {
		i := slices.IndexFunc(list, func(l listener) bool { return l.id == id })
		if i < 0 {
			continue
		}
		// Replace rather than mutate so in-flight dispatch snapshots stay intact.
		ls.byTag[tag] = slices.Delete(slices.Clone(list), i, i+1)
		if len(ls.byTag[tag]) == 0 {
			delete(ls.byTag, tag)
		}
		return true
	}
	return false
}

// matching returns tag listeners followed by wildcard listeners. The result
// is safe to iterate without the lock.
func (ls *listeners) matching(tag events.Type) []listener {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	specific := ls.byTag[tag]
	wild := ls.byTag[Wildcard]
	out := make([]listener, 0, len(specific)+len(wild))
	out = append(out, specific...)
	return append(out, wild...)
}

func (ls *listeners) count() int {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	n := 0
	for _, list := range ls.byTag {
		n += len(list)
	}
	return n
}

func (ls *listeners) reset() {
	ls.mu.Lock()
	clear(ls.byTag)
	ls.mu.Unlock()
}
