package whatsapp

import (
	"sync"

	"hotel-messaging/internal/models"
)

// history keeps the most recent messages seen on the session, oldest
// first, so they can be listed like any other message source.
type history struct {
	mu    sync.Mutex
	size  int
	items []models.Message
	byID  map[string]int
}

func newHistory(size int) *history {
	if size <= 0 {
		size = 500
	}
	return &history{size: size, byID: make(map[string]int)}
}

// add appends m, dropping the oldest message once full. A message whose
// ID is already held replaces the stored copy.
func (h *history) add(m models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i, ok := h.byID[m.ID]; ok && m.ID != "" {
		h.items[i] = m
		return
	}
	if len(h.items) >= h.size {
		h.items = h.items[1:]
		h.reindex()
	}
	h.items = append(h.items, m)
	if m.ID != "" {
		h.byID[m.ID] = len(h.items) - 1
	}
}

func (h *history) reindex() {
	h.byID = make(map[string]int, len(h.items))
	for i, m := range h.items {
		if m.ID != "" {
			h.byID[m.ID] = i
		}
	}
}

// setStatus updates the delivery status of held messages.
func (h *history) setStatus(ids []string, status string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, id := range ids {
		if i, ok := h.byID[id]; ok {
			h.items[i].Status = status
			n++
		}
	}
	return n
}

// recent returns up to limit messages, newest first.
func (h *history) recent(limit int) []models.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > len(h.items) {
		limit = len(h.items)
	}
	out := make([]models.Message, 0, limit)
	for i := len(h.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.items[i])
	}
	return out
}
