// Package dispatch routes an instruction payload to a handler by its
// leading discriminator.
//
// A program fixes its discriminator width once, by choosing the router
// constructor:
//
//   - Single: width 0. The whole payload is the handler's input.
//   - ByByte: width 1, routed through a 256-entry jump table.
//   - ByPrefix: width 2 to 8, read as a little-endian integer and compared
//     against a short slice of routes.
//
// Changing the width or renumbering discriminators changes the wire format
// every client encodes against.
package dispatch

import (
	"crypto/sha256"
	"fmt"

	"github.com/fortiblox/X1-Cirrus/pkg/program"
)

// MaxWidth is the widest discriminator ByPrefix accepts.
const MaxWidth = 8

// Handler runs one instruction. args is the payload after the
// discriminator.
type Handler[C any] func(ctx C, args []byte) error

// Route1 binds a one-byte discriminator to a handler.
type Route1[C any] struct {
	Disc    uint8
	Handler Handler[C]
}

// RouteN binds a multi-byte discriminator to a handler.
type RouteN[C any] struct {
	Disc    uint64
	Handler Handler[C]
}

// Router is an immutable discriminator table. Build it once in a
// package-level var.
type Router[C any] struct {
	width  int
	single Handler[C]
	table  [256]Handler[C]
	routes []RouteN[C]
}

// Single returns a width-0 router that always calls h.
func Single[C any](h Handler[C]) *Router[C] {
	if h == nil {
		panic("dispatch: nil handler")
	}
	return &Router[C]{single: h}
}

// ByByte returns a width-1 router. It panics if two routes share a
// discriminator or a handler is nil.
func ByByte[C any](routes ...Route1[C]) *Router[C] {
	r := &Router[C]{width: 1}
	for _, rt := range routes {
		if rt.Handler == nil {
			panic(fmt.Sprintf("dispatch: nil handler for discriminator %d", rt.Disc))
		}
		if r.table[rt.Disc] != nil {
			panic(fmt.Sprintf("dispatch: duplicate discriminator %d", rt.Disc))
		}
		r.table[rt.Disc] = rt.Handler
	}
	return r
}

// ByPrefix returns a router for discriminators of width bytes. It panics on
// a width outside 2..8, a discriminator that does not fit the width, a
// duplicate, or a nil handler.
func ByPrefix[C any](width int, routes ...RouteN[C]) *Router[C] {
	if width < 2 || width > MaxWidth {
		panic(fmt.Sprintf("dispatch: invalid discriminator width %d", width))
	}
	r := &Router[C]{width: width, routes: make([]RouteN[C], 0, len(routes))}
	for _, rt := range routes {
		if rt.Handler == nil {
			panic(fmt.Sprintf("dispatch: nil handler for discriminator %#x", rt.Disc))
		}
		if width < MaxWidth && rt.Disc>>(8*width) != 0 {
			panic(fmt.Sprintf("dispatch: discriminator %#x wider than %d bytes", rt.Disc, width))
		}
		for _, existing := range r.routes {
			if existing.Disc == rt.Disc {
				panic(fmt.Sprintf("dispatch: duplicate discriminator %#x", rt.Disc))
			}
		}
		r.routes = append(r.routes, rt)
	}
	return r
}

// Width returns the discriminator width in bytes.
func (r *Router[C]) Width() int { return r.width }

// Dispatch calls the handler for payload's discriminator. A payload shorter
// than the width or an unknown discriminator fails with
// ErrUnknownDiscriminator and calls nothing.
func (r *Router[C]) Dispatch(ctx C, payload []byte) error {
	switch r.width {
	case 0:
		return r.single(ctx, payload)
	case 1:
		if len(payload) < 1 {
			return program.ErrUnknownDiscriminator
		}
		h := r.table[payload[0]]
		if h == nil {
			return program.ErrUnknownDiscriminator
		}
		return h(ctx, payload[1:])
	}

	if len(payload) < r.width {
		return program.ErrUnknownDiscriminator
	}
	disc := readLE(payload[:r.width])
	for i := range r.routes {
		if r.routes[i].Disc == disc {
			return r.routes[i].Handler(ctx, payload[r.width:])
		}
	}
	return program.ErrUnknownDiscriminator
}

func readLE(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// Encode builds a payload for a router of the given width: disc in width
// little-endian bytes followed by args.
func Encode(width int, disc uint64, args []byte) []byte {
	out := make([]byte, width+len(args))
	for i := 0; i < width; i++ {
		out[i] = byte(disc >> (8 * i))
	}
	copy(out[width:], args)
	return out
}

// Anchor returns the 8-byte sighash discriminator framework-encoded clients
// send for the instruction name, as a ByPrefix(8) key.
func Anchor(name string) uint64 {
	sum := sha256.Sum256([]byte("global:" + name))
	return readLE(sum[:8])
}
