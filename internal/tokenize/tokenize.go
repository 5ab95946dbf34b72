// Package tokenize turns free text into space-joined search tokens.
//
// Chinese has no whitespace between words, so text is segmented before it
// is stored; substring queries then line up with token boundaries.
package tokenize

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/registry"
	lru "github.com/hashicorp/golang-lru/v2"

	"imgsearch/internal/models"
)

// Segmenter splits text into an ordered token sequence.
type Segmenter interface {
	Segment(text string) ([]string, error)
}

// BleveSegmenter runs a named bleve analyzer. Only terms are kept; positions
// and token types are dropped.
type BleveSegmenter struct {
	analyzer analysis.Analyzer
}

// NewCJKSegmenter builds a segmenter on bleve's cjk analyzer: unicode word
// boundaries, width folding, lowercasing and CJK bigrams.
func NewCJKSegmenter() (*BleveSegmenter, error) {
	return NewBleveSegmenter(cjk.AnalyzerName)
}

func NewBleveSegmenter(analyzerName string) (*BleveSegmenter, error) {
	const op = "tokenize.NewBleveSegmenter"

	an, err := registry.NewCache().AnalyzerNamed(analyzerName)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &BleveSegmenter{analyzer: an}, nil
}

func (s *BleveSegmenter) Segment(text string) (tokens []string, err error) {
	const op = "tokenize.Segment"

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			tokens = nil
			err = fmt.Errorf("%s: %w: %v", op, models.ErrTokenize, r)
		}
	}()

	stream := s.analyzer.Analyze([]byte(text))
	tokens = make([]string, 0, len(stream))
	for _, tok := range stream {
		if len(tok.Term) == 0 {
			continue
		}
		tokens = append(tokens, string(tok.Term))
	}
	return tokens, nil
}

// CachedSegmenter memoizes another segmenter. Used for search queries, which
// repeat far more than OCR text does.
type CachedSegmenter struct {
	next  Segmenter
	cache *lru.Cache[string, []string]
}

func NewCachedSegmenter(next Segmenter, size int) (*CachedSegmenter, error) {
	const op = "tokenize.NewCachedSegmenter"

	cache, err := lru.New[string, []string](size)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &CachedSegmenter{next: next, cache: cache}, nil
}

func (c *CachedSegmenter) Segment(text string) ([]string, error) {
	if tokens, ok := c.cache.Get(text); ok {
		return tokens, nil
	}
	tokens, err := c.next.Segment(text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, tokens)
	return tokens, nil
}

// Tokenizer produces the flat, space-joined form stored in indexed_text.
type Tokenizer struct {
	seg    Segmenter
	logger *slog.Logger
}

func New(seg Segmenter, logger *slog.Logger) *Tokenizer {
	return &Tokenizer{seg: seg, logger: logger}
}

// Join segments text and joins the tokens with single spaces. A segmenter
// failure is not fatal: the whitespace-normalized input is returned instead.
func (t *Tokenizer) Join(text string) string {
	tokens, err := t.seg.Segment(text)
	if err != nil {
		t.logger.Warn("segmentation failed, indexing unsegmented text", slog.String("error", err.Error()))
		return Normalize(text)
	}
	return strings.Join(tokens, " ")
}

// Normalize collapses every run of whitespace, line breaks included, into a
// single space and trims the ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
