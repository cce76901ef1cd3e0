package classifier

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	"sync"

	"github.com/corona10/goimagehash"
)

// CachedClassifier memoizes results by perceptual hash so visually identical
// frames (static scenes, freeze frames) are classified once. Frames that
// cannot be decoded or hashed fall through to the wrapped classifier.
type CachedClassifier struct {
	upstream Classifier
	maxSize  int

	mu      sync.Mutex
	results map[uint64]Result
	order   []uint64
}

func NewCachedClassifier(upstream Classifier, maxSize int) *CachedClassifier {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &CachedClassifier{
		upstream: upstream,
		maxSize:  maxSize,
		results:  make(map[uint64]Result),
	}
}

func (c *CachedClassifier) Classify(ctx context.Context, frame []byte) (Result, error) {
	key, ok := frameHash(frame)
	if !ok {
		return c.upstream.Classify(ctx, frame)
	}

	c.mu.Lock()
	if result, hit := c.results[key]; hit {
		c.mu.Unlock()
		return result, nil
	}
	c.mu.Unlock()

	result, err := c.upstream.Classify(ctx, frame)
	if err != nil {
		return Result{}, err
	}

	c.mu.Lock()
	if _, exists := c.results[key]; !exists {
		if len(c.order) >= c.maxSize {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.results, oldest)
		}
		c.results[key] = result
		c.order = append(c.order, key)
	}
	c.mu.Unlock()

	return result, nil
}

func frameHash(frame []byte) (uint64, bool) {
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return 0, false
	}
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return 0, false
	}
	return hash.GetHash(), true
}
