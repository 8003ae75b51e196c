package ml

import (
	"context"
	"encoding/binary"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedResult struct {
	index  int
	scores []float64
}

// CachedClassifier memoizes a deterministic classifier. Keys are the exact
// bit patterns of the normalized window, so only identical inputs hit.
type CachedClassifier struct {
	next  Classifier
	cache *lru.Cache[string, cachedResult]
}

func NewCachedClassifier(next Classifier, size int) (*CachedClassifier, error) {
	cache, err := lru.New[string, cachedResult](size)
	if err != nil {
		return nil, configError("classifier cache: %v", err)
	}
	return &CachedClassifier{next: next, cache: cache}, nil
}

func (c *CachedClassifier) NumClasses() int {
	if counter, ok := c.next.(ClassCounter); ok {
		return counter.NumClasses()
	}
	return 0
}

func (c *CachedClassifier) Classify(ctx context.Context, tensor Window) (int, []float64, error) {
	key := windowKey(tensor)
	if hit, ok := c.cache.Get(key); ok {
		return hit.index, append([]float64(nil), hit.scores...), nil
	}
	idx, scores, err := c.next.Classify(ctx, tensor)
	if err != nil {
		return 0, nil, err
	}
	c.cache.Add(key, cachedResult{index: idx, scores: append([]float64(nil), scores...)})
	return idx, scores, nil
}

func (c *CachedClassifier) Len() int {
	return c.cache.Len()
}

func windowKey(tensor Window) string {
	size := 0
	for _, row := range tensor {
		size += 4 + 8*len(row)
	}
	buf := make([]byte, 0, size)
	for _, row := range tensor {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(row)))
		for _, v := range row {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	return string(buf)
}
