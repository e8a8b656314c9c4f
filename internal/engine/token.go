package engine

import "sync"

// token is the exclusive right to run a session.
type token struct {
	ch chan struct{}
}

func newToken() token {
	return token{ch: make(chan struct{}, 1)}
}

// tryAcquire takes the token without blocking. The returned release func is
// safe to call more than once.
func (t token) tryAcquire() (release func(), ok bool) {
	select {
	case t.ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-t.ch }) }, true
	default:
		return nil, false
	}
}

// held reports whether a session currently holds the token.
func (t token) held() bool {
	return len(t.ch) == 1
}
