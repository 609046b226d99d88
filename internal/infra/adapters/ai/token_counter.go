package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"ideaforge-billing/internal/domain/ports/adapter"
)

var _ adapter.TokenCounter = (*TiktokenCounter)(nil)

// TiktokenCounter counts tokens with a BPE encoding. The encoding is loaded
// on first use; a load failure is returned from every Count call.
type TiktokenCounter struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenCounter{encoding: encoding}
}

func (c *TiktokenCounter) Count(text string) (int, error) {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.GetEncoding(c.encoding)
	})
	if c.err != nil {
		return 0, c.err
	}
	return len(c.enc.Encode(text, nil, nil)), nil
}
