// Package catalog loads operation declarations from a JSON file.
package catalog

import "github.com/morezero/wallet-bridge/pkg/dispatcher"

// Catalog is the root of an operations file.
type Catalog struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	// Operations add to or replace the built-in declarations by name.
	Operations []dispatcher.Operation `json:"operations"`
	// Aliases expose an existing operation under another name.
	Aliases map[string]string `json:"aliases,omitempty"`
}

// Registerer accepts operation declarations. *dispatcher.Dispatcher satisfies it.
type Registerer interface {
	Register(op dispatcher.Operation) error
	Operation(name string) (dispatcher.Operation, bool)
}
