package tokens

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/compozy/docqa/pkg/logger"
	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/sync/singleflight"
)

const defaultEncoding = "cl100k_base"

// buildTimeout bounds the first encoding download.
const buildTimeout = 3 * time.Second

// runesPerToken approximates tokenizer output when no encoding can be loaded.
const runesPerToken = 4

// Counter counts tokens in text.
type Counter interface {
	CountTokens(ctx context.Context, text string) int
}

var (
	counters        sync.Map
	tokenizerBuilds singleflight.Group
	// loadEncoding is swapped in tests to avoid fetching BPE ranks.
	loadEncoding = resolveEncoder
)

// Estimate sums the token counts of texts for model. It never fails: when the
// tokenizer cannot be built the count falls back to a rune based estimate.
func Estimate(ctx context.Context, model string, texts ...string) int {
	if len(texts) == 0 {
		return 0
	}
	counter := ForModel(ctx, model)
	total := 0
	for _, text := range texts {
		total += counter.CountTokens(ctx, text)
	}
	return total
}

// ForModel returns a cached counter for model.
func ForModel(ctx context.Context, model string) Counter {
	key := strings.TrimSpace(model)
	if cached, ok := counters.Load(key); ok {
		return cached.(Counter)
	}
	ch := tokenizerBuilds.DoChan(key, func() (any, error) {
		enc, err := loadEncoding(key)
		if err != nil {
			return nil, err
		}
		return &tiktokenCounter{encoder: enc}, nil
	})
	var err error
	select {
	case res := <-ch:
		if res.Err == nil {
			counter := res.Val.(Counter)
			counters.Store(key, counter)
			return counter
		}
		err = res.Err
	case <-time.After(buildTimeout):
		err = fmt.Errorf("tokenizer build exceeded %s", buildTimeout)
	case <-ctx.Done():
		return runeCounter{}
	}
	logger.FromContext(ctx).Debug("Tokenizer unavailable; estimating from runes", "model", key, "error", err)
	counters.Store(key, runeCounter{})
	return runeCounter{}
}

func resolveEncoder(model string) (*tiktoken.Tiktoken, error) {
	if model != "" {
		if enc, err := tiktoken.EncodingForModel(model); err == nil {
			return enc, nil
		}
	}
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("get default encoding: %w", err)
	}
	return enc, nil
}

type tiktokenCounter struct {
	encoder *tiktoken.Tiktoken
}

func (c *tiktokenCounter) CountTokens(_ context.Context, text string) int {
	return len(c.encoder.Encode(text, nil, nil))
}

type runeCounter struct{}

func (runeCounter) CountTokens(_ context.Context, text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + runesPerToken - 1) / runesPerToken
}

// resetCounters clears the tokenizer cache; intended for tests only.
func resetCounters() {
	counters = sync.Map{}
}
