package tokenizer

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	KindChars    = "chars"
	KindWords    = "words"
	KindTiktoken = "tiktoken"

	defaultEncoding = "cl100k_base"
)

// Estimator approximates the number of model tokens in a text. Composers
// treat the value as an upper-bound heuristic, not an exact count.
type Estimator interface {
	Estimate(text string) int
}

type EstimatorFunc func(text string) int

func (f EstimatorFunc) Estimate(text string) int {
	return f(text)
}

// Chars is the len/4 rule used when no tokenizer is available.
var Chars Estimator = EstimatorFunc(func(text string) int {
	return utf8.RuneCountInString(text) / 4
})

// Words counts whitespace separated words plus one token per non-ASCII rune.
var Words Estimator = EstimatorFunc(func(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
})

type tiktokenEstimator struct {
	encoding string
	fallback Estimator

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTiktoken loads the BPE ranks lazily on first use. When the encoding
// cannot be loaded every call is served by fallback.
func NewTiktoken(encoding string, fallback Estimator) Estimator {
	if encoding == "" {
		encoding = defaultEncoding
	}
	if fallback == nil {
		fallback = Chars
	}
	return &tiktokenEstimator{encoding: encoding, fallback: fallback}
}

func (t *tiktokenEstimator) Estimate(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			logutil.GetLogger(context.Background()).Warn("load tiktoken encoding failed, using fallback estimator",
				zap.String("encoding", t.encoding), zap.Error(err))
			return
		}
		t.enc = enc
	})
	if t.enc == nil {
		return t.fallback.Estimate(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// New picks an estimator by config name; unknown names get the char rule.
func New(kind string) Estimator {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindTiktoken:
		return NewTiktoken(defaultEncoding, Chars)
	case KindWords:
		return Words
	default:
		return Chars
	}
}
