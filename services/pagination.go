package services

import "github.com/nls08/NLS-Portal-sub001/storage"

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// Page selects a window of a list endpoint. Zero values fall back to the defaults.
type Page struct {
	Page  int
	Limit int
}

func (p Page) normalized() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// apply sets skip and limit on opts.
func (p Page) apply(opts storage.FindOptions) storage.FindOptions {
	p = p.normalized()
	opts.Skip = int64((p.Page - 1) * p.Limit)
	opts.Limit = int64(p.Limit)
	return opts
}
