// Package middleware provides decorators for ports.ChannelStore.
package middleware

import "github.com/aretw0/chanflow/pkg/ports"

// Middleware allows wrapping a ChannelStore to add behavior.
type Middleware func(ports.ChannelStore) ports.ChannelStore
