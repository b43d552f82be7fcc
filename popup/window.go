package popup

// Window is an open popup window as seen from the main window.
type Window interface {
	// Closed reports whether the window has been closed, by us or the user.
	Closed() bool

	// Close closes the window. Safe to call on an already-closed window.
	Close()
}

// Opener creates popup windows. Open must fail synchronously when the window
// cannot be created (e.g. a popup blocker), not as a later rejection.
type Opener interface {
	Open(url string) (Window, error)
}
