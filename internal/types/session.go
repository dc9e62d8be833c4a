package types

// Session is an opaque handle to an authenticated rendering session.
// Concrete providers hand out their own implementation.
type Session interface {
	// ID identifies the session in logs.
	ID() string
}

// RenderOptions tunes a rendered fetch.
type RenderOptions struct {
	// ScrollForMore expands collapsed comment threads and scrolls the page
	// so lazily loaded comments are present in the returned HTML.
	ScrollForMore bool
}
