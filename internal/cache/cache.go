// Package cache stores principals by email so that authenticated requests
// can skip the database. The database stays authoritative; an entry may be
// stale until it expires or is overwritten.
package cache

import (
	"context"
	"time"

	"github.com/sakif/contacts-api/internal/model"
)

// DefaultTTL matches the access token lifetime.
const DefaultTTL = time.Hour

// Nop never stores anything. It stands in when Redis is not configured.
type Nop struct{}

func (Nop) Get(context.Context, string) (*model.Principal, bool, error) { return nil, false, nil }

func (Nop) Set(context.Context, *model.Principal, time.Duration) error { return nil }

func (Nop) Delete(context.Context, string) error { return nil }

func (Nop) Ping(context.Context) error { return nil }

func (Nop) Close() error { return nil }
