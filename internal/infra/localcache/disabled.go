package localcache

import (
	"context"
	"time"

	"ideaforge-billing/internal/domain/ports/adapter"
)

var _ adapter.CacheStore = Disabled{}

// Disabled misses every read and drops every write.
type Disabled struct{}

func (Disabled) Get(context.Context, string, any) bool            { return false }
func (Disabled) Set(context.Context, string, any, time.Duration) {}
func (Disabled) Delete(context.Context, string)                  {}
