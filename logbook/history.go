package logbook

import (
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultHistorySize is the number of sent inputs remembered.
const DefaultHistorySize = 10

// History remembers recently sent inputs, most recent first, without
// duplicates.
type History struct {
	cache *lru.Cache[string, struct{}]
}

// NewHistory creates a History holding up to size inputs.
func NewHistory(size int) (*History, error) {
	if size <= 0 {
		size = DefaultHistorySize
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &History{cache: cache}, nil
}

// Add records an input. Blank input is ignored; a repeated input moves to
// the front.
func (h *History) Add(input string) {
	if strings.TrimSpace(input) == "" {
		return
	}
	h.cache.Add(input, struct{}{})
}

// List returns the remembered inputs, most recent first.
func (h *History) List() []string {
	keys := h.cache.Keys()
	slices.Reverse(keys)
	return keys
}

func (h *History) Len() int {
	return h.cache.Len()
}

func (h *History) Clear() {
	h.cache.Purge()
}
