// Package transporttest provides a scriptable transport.Transport double:
// a fake with recorded calls and canned responses, used by every
// component's unit tests instead of a live M-Pin platform.
package transporttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mpin-labs/mpinclient/internal/transport"
)

// Call records one request the fake observed.
type Call struct {
	Method string
	Path   string
	Body   any
}

// Responder returns the Response or error for one recorded call.
type Responder func(call Call) (transport.Response, error)

// Fake is a Transport whose response for each call is looked up by path,
// in the order routes were registered; a call with no queued response
// returns a plain error — this makes test setup read like a route table.
type Fake struct {
	mu     sync.Mutex
	Calls  []Call
	routes map[string][]Responder
}

func New() *Fake {
	return &Fake{routes: make(map[string][]Responder)}
}

// On registers the next Responder to return for requests against path.
// Multiple calls to On queue successive responses (FIFO), letting tests
// express "first call returns X, second call returns Y" (e.g. the renewal
// recursion in spec.md §4.5).
func (f *Fake) On(path string, r Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = append(f.routes[path], r)
}

// OnJSON is a convenience wrapper around On for the common case of
// returning a fixed JSON body.
func (f *Fake) OnJSON(path string, body any) {
	f.On(path, func(Call) (transport.Response, error) {
		encoded, err := json.Marshal(body)
		if err != nil {
			return transport.Response{}, err
		}
		return transport.Response{StatusCode: 200, Body: encoded}, nil
	})
}

// OnError queues a transport-level error for path.
func (f *Fake) OnError(path string, err error) {
	f.On(path, func(Call) (transport.Response, error) { return transport.Response{}, err })
}

func (f *Fake) Do(_ context.Context, req transport.Request) (transport.Response, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, Call{Method: req.Method, Path: req.Path, Body: req.Body})
	queue := f.routes[req.Path]
	var next Responder
	if len(queue) > 0 {
		next = queue[0]
		f.routes[req.Path] = queue[1:]
	}
	f.mu.Unlock()

	if next == nil {
		return transport.Response{}, fmt.Errorf("transporttest: no response queued for %s %s", req.Method, req.Path)
	}
	return next(Call{Method: req.Method, Path: req.Path, Body: req.Body})
}

// CallCount returns how many times path was requested.
func (f *Fake) CallCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

var _ transport.Transport = (*Fake)(nil)
