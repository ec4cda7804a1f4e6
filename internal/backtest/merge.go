package backtest

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"stock-backtest/internal/data"
	"stock-backtest/internal/model"
)

// symbolStream cursors over one symbol's batch channel.
type symbolStream struct {
	symbol string
	ch     <-chan []model.MarketDataPoint
	batch  []model.MarketDataPoint
	idx    int
}

// head returns the cursor's current point. Only valid while the stream is on
// the heap.
func (s *symbolStream) head() model.MarketDataPoint { return s.batch[s.idx] }

// advance moves past the current point, pulling the next batch when the
// current one is exhausted. Returns false when the stream is drained or the
// context ended.
func (s *symbolStream) advance(ctx context.Context) bool {
	s.idx++
	if s.idx < len(s.batch) {
		return true
	}
	return s.pull(ctx)
}

func (s *symbolStream) pull(ctx context.Context) bool {
	for {
		select {
		case batch, ok := <-s.ch:
			if !ok {
				return false
			}
			if len(batch) == 0 {
				continue
			}
			s.batch = batch
			s.idx = 0
			return true
		case <-ctx.Done():
			return false
		}
	}
}

// streamHeap orders live streams by their head timestamp, symbol as the
// tie-break so interleaving is deterministic.
type streamHeap []*symbolStream

func (h streamHeap) Len() int { return len(h) }

func (h streamHeap) Less(i, j int) bool {
	ti, tj := h[i].head().Timestamp, h[j].head().Timestamp
	if ti.Equal(tj) {
		return h[i].symbol < h[j].symbol
	}
	return ti.Before(tj)
}

func (h streamHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *streamHeap) Push(x any) { *h = append(*h, x.(*symbolStream)) }

func (h *streamHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return s
}

// mergeStreams opens one historical stream per universe symbol and feeds the
// k-way merged, globally chronological sequence into out. Closes out when
// every stream is drained.
func mergeStreams(ctx context.Context, provider data.Provider, symbols []string, start, end time.Time, out chan<- model.MarketDataPoint) error {
	defer close(out)

	h := &streamHeap{}
	for _, symbol := range symbols {
		ch, err := provider.GetHistoricalData(ctx, symbol, start, end)
		if err != nil {
			return fmt.Errorf("open stream %s: %w", symbol, err)
		}
		s := &symbolStream{symbol: symbol, ch: ch, idx: -1}
		if s.advance(ctx) {
			heap.Push(h, s)
		}
	}

	for h.Len() > 0 {
		s := (*h)[0]
		select {
		case out <- s.head():
		case <-ctx.Done():
			return ctx.Err()
		}
		if s.advance(ctx) {
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}
	return ctx.Err()
}
