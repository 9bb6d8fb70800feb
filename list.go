package bigstash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
)

// page is the wire shape of every list response.
type page struct {
	Results  []json.RawMessage `json:"results"`
	Next     *string           `json:"next"`
	Count    int               `json:"count"`
	Previous *string           `json:"previous"`
}

// pageFetcher retrieves one page of a list.
type pageFetcher interface {
	fetchPage(ctx context.Context, url string) (*page, Metadata, error)
}

// decodeFunc turns one list element into T, attaching the page metadata.
type decodeFunc[T any] func(raw json.RawMessage, meta Metadata) (T, error)

// List is a lazily fetched sequence over a "next" cursor. Elements that
// have been fetched are kept, so iterating again replays them before
// any further page is requested. A page is never fetched twice.
type List[T any] struct {
	fetcher pageFetcher
	decode  decodeFunc[T]

	// fetchMu serialises page requests so the cursor only moves forward.
	fetchMu sync.Mutex

	mu    sync.RWMutex
	known []T
	next  string
	count int
}

func newList[T any](fetcher pageFetcher, decode decodeFunc[T], next string) *List[T] {
	return &List[T]{fetcher: fetcher, decode: decode, next: next, count: -1}
}

// Complete reports whether every page has been fetched.
func (l *List[T]) Complete() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.next == ""
}

// Known returns a copy of the elements fetched so far.
func (l *List[T]) Known() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]T(nil), l.known...)
}

// Count returns the total reported by the last fetched page, or -1 when
// no page has been fetched.
func (l *List[T]) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// FetchPage fetches the next page and returns its elements. It returns
// ErrListComplete once the cursor is exhausted.
func (l *List[T]) FetchPage(ctx context.Context) ([]T, error) {
	l.fetchMu.Lock()
	defer l.fetchMu.Unlock()

	l.mu.RLock()
	next := l.next
	l.mu.RUnlock()

	if next == "" {
		return nil, ErrListComplete
	}

	p, meta, err := l.fetcher.fetchPage(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	items := make([]T, 0, len(p.Results))
	for i, raw := range p.Results {
		item, err := l.decode(raw, meta)
		if err != nil {
			return nil, &ServiceError{Message: fmt.Sprintf("decode list element %d", i), Err: err}
		}
		items = append(items, item)
	}

	l.mu.Lock()
	l.known = append(l.known, items...)
	l.next = ""
	if p.Next != nil {
		l.next = *p.Next
	}
	l.count = p.Count
	l.mu.Unlock()

	slog.Debug("fetched page", "url", next, "items", len(items), "has_next", p.Next != nil)

	return items, nil
}

// Iter returns an iterator starting at the first element.
func (l *List[T]) Iter() *Iterator[T] {
	return &Iterator[T]{list: l}
}

// All fetches every remaining page and returns all elements.
func (l *List[T]) All(ctx context.Context) ([]T, error) {
	for {
		_, err := l.FetchPage(ctx)
		if errors.Is(err, ErrListComplete) {
			return l.Known(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Take returns up to n elements, fetching only the pages needed.
func (l *List[T]) Take(ctx context.Context, n int) ([]T, error) {
	out := make([]T, 0, n)
	it := l.Iter()
	for len(out) < n && it.Next(ctx) {
		out = append(out, it.Value())
	}
	return out, it.Err()
}

// Seq adapts the list to a range-over-func sequence. Iteration stops
// after the first error is yielded.
func (l *List[T]) Seq(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		it := l.Iter()
		for it.Next(ctx) {
			if !yield(it.Value(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// Iterator walks a List, fetching pages on demand.
type Iterator[T any] struct {
	list *List[T]
	pos  int
	cur  T
	err  error
}

// Next advances to the next element. It returns false at the end of the
// list or on error; check Err afterwards.
func (it *Iterator[T]) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}

	for {
		it.list.mu.RLock()
		if it.pos < len(it.list.known) {
			it.cur = it.list.known[it.pos]
			it.pos++
			it.list.mu.RUnlock()
			return true
		}
		it.list.mu.RUnlock()

		_, err := it.list.FetchPage(ctx)
		if errors.Is(err, ErrListComplete) {
			// Another iterator may have fetched the last page meanwhile.
			it.list.mu.RLock()
			more := it.pos < len(it.list.known)
			it.list.mu.RUnlock()
			if more {
				continue
			}
			return false
		}
		if err != nil {
			it.err = err
			return false
		}
	}
}

// Value returns the current element.
func (it *Iterator[T]) Value() T {
	return it.cur
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator[T]) Err() error {
	return it.err
}
