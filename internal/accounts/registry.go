// Package accounts holds the configured sender identities.
//
// The registry is built once from config and never mutates afterwards, so
// reads need no locking.
package accounts

import (
	"errors"
	"strings"
)

var ErrNotFound = errors.New("account not found")

// Account is one outbound sender identity.
type Account struct {
	ID            string
	Name          string
	Address       string
	CredentialRef string
}

func (a Account) complete() bool {
	return strings.TrimSpace(a.ID) != "" &&
		strings.TrimSpace(a.Name) != "" &&
		strings.TrimSpace(a.Address) != "" &&
		strings.TrimSpace(a.CredentialRef) != ""
}

type Registry struct {
	order []string
	byID  map[string]Account
}

// NewRegistry builds the registry, keeping only completely configured
// accounts and preserving config order. Duplicate ids keep the first entry.
func NewRegistry(list []Account) *Registry {
	r := &Registry{byID: make(map[string]Account, len(list))}
	for _, a := range list {
		if !a.complete() {
			continue
		}
		if _, dup := r.byID[a.ID]; dup {
			continue
		}
		r.byID[a.ID] = a
		r.order = append(r.order, a.ID)
	}
	return r
}

// List returns all usable accounts in config order.
func (r *Registry) List() []Account {
	out := make([]Account, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Get(id string) (Account, error) {
	a, ok := r.byID[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (r *Registry) Len() int { return len(r.order) }
