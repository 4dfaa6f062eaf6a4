// Package middleware wraps a ports.RunStore with encryption and masking.
package middleware

import "github.com/aretw0/stepflow/pkg/ports"

// Middleware allows wrapping a RunStore to add behavior.
type Middleware func(ports.RunStore) ports.RunStore

// Chain applies middlewares so that the first one sees calls first.
// Chain(store, mask, encrypt) masks, then encrypts, then stores.
func Chain(store ports.RunStore, mws ...Middleware) ports.RunStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
