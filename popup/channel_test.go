package popup_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	errs "github.com/cryptodash/zklogin/internal/errors"
	"github.com/cryptodash/zklogin/popup"
)

type fakeWindow struct {
	mu     sync.Mutex
	closed bool
}

func (w *fakeWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWindow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

type fakeOpener struct {
	blocked bool
	window  *fakeWindow
	openURL string
}

func (o *fakeOpener) Open(url string) (popup.Window, error) {
	o.openURL = url
	if o.blocked {
		return nil, errs.ErrPopupBlocked
	}
	o.window = &fakeWindow{}
	return o.window, nil
}

type openResult struct {
	jwt string
	err error
}

func openAsync(c *popup.Channel, ctx context.Context, url string) <-chan openResult {
	results := make(chan openResult, 1)
	go func() {
		jwt, err := c.Open(ctx, url)
		results <- openResult{jwt: jwt, err: err}
	}()
	return results
}

func TestChannel_Open(t *testing.T) {
	const origin = "http://localhost:5173"

	t.Run("resolves with the token on success", func(t *testing.T) {
		bus := popup.NewBus(origin)
		opener := &fakeOpener{}
		channel := popup.NewChannel(opener, bus.Opener())

		results := openAsync(channel, context.Background(), "https://idp.example/authorize")
		bus.Popup().Post(popup.Message{Type: popup.MessageOAuthSuccess, JWT: "header.payload.sig"})

		result := <-results
		require.NoError(t, result.err)
		require.Equal(t, "header.payload.sig", result.jwt)
		require.Equal(t, "https://idp.example/authorize", opener.openURL)
		require.True(t, opener.window.Closed(), "popup must be closed after settlement")
	})

	t.Run("rejects on an error message", func(t *testing.T) {
		bus := popup.NewBus(origin)
		opener := &fakeOpener{}
		channel := popup.NewChannel(opener, bus.Opener())

		results := openAsync(channel, context.Background(), "u")
		bus.Popup().Post(popup.Message{Type: popup.MessageOAuthError, Error: "access_denied"})

		result := <-results
		require.ErrorIs(t, result.err, errs.ErrRejected)
		require.Contains(t, result.err.Error(), "access_denied")
		require.True(t, opener.window.Closed())
	})

	t.Run("cancelled when the user closes the popup", func(t *testing.T) {
		bus := popup.NewBus(origin)
		opener := &fakeOpener{}
		channel := popup.NewChannel(opener, bus.Opener(), popup.WithPollInterval(5*time.Millisecond))

		results := openAsync(channel, context.Background(), "u")
		require.Eventually(t, func() bool { return opener.window != nil }, time.Second, time.Millisecond)
		opener.window.Close()

		result := <-results
		require.ErrorIs(t, result.err, errs.ErrCancelled)
	})

	t.Run("times out when no result arrives", func(t *testing.T) {
		bus := popup.NewBus(origin)
		opener := &fakeOpener{}
		channel := popup.NewChannel(opener, bus.Opener(),
			popup.WithTimeout(30*time.Millisecond),
			popup.WithPollInterval(time.Hour))

		result := <-openAsync(channel, context.Background(), "u")
		require.ErrorIs(t, result.err, errs.ErrTimedOut)
		require.True(t, opener.window.Closed(), "timeout must close the popup")
	})

	t.Run("cancelled when the context is cancelled", func(t *testing.T) {
		bus := popup.NewBus(origin)
		opener := &fakeOpener{}
		channel := popup.NewChannel(opener, bus.Opener())

		ctx, cancel := context.WithCancel(context.Background())
		results := openAsync(channel, ctx, "u")
		cancel()

		result := <-results
		require.ErrorIs(t, result.err, errs.ErrCancelled)
		require.True(t, opener.window.Closed())
	})

	t.Run("blocked popup fails synchronously", func(t *testing.T) {
		bus := popup.NewBus(origin)
		channel := popup.NewChannel(&fakeOpener{blocked: true}, bus.Opener())

		_, err := channel.Open(context.Background(), "u")
		require.ErrorIs(t, err, errs.ErrPopupBlocked)
	})

	t.Run("foreign-origin messages are ignored", func(t *testing.T) {
		bus := popup.NewBus(origin)
		opener := &fakeOpener{}
		channel := popup.NewChannel(opener, bus.Opener())

		results := openAsync(channel, context.Background(), "u")
		bus.Popup().Post(popup.Message{Type: popup.MessageOAuthSuccess, JWT: "forged", Origin: "https://evil.example"})
		bus.Popup().Post(popup.Message{Type: popup.MessageOAuthError, Error: "forged", Origin: "https://evil.example"})
		bus.Popup().Post(popup.Message{Type: popup.MessageOAuthSuccess, JWT: "genuine"})

		result := <-results
		require.NoError(t, result.err)
		require.Equal(t, "genuine", result.jwt)
	})

	t.Run("first settlement wins", func(t *testing.T) {
		bus := popup.NewBus(origin)
		opener := &fakeOpener{}
		channel := popup.NewChannel(opener, bus.Opener())

		results := openAsync(channel, context.Background(), "u")
		bus.Popup().Post(popup.Message{Type: popup.MessageOAuthError, Error: "denied"})
		bus.Popup().Post(popup.Message{Type: popup.MessageOAuthSuccess, JWT: "late"})

		result := <-results
		require.ErrorIs(t, result.err, errs.ErrRejected)

		// No second outcome: Open has returned, the late message stays in
		// the mailbox and nothing fires again.
		select {
		case extra := <-results:
			t.Fatalf("unexpected second outcome: %+v", extra)
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestChannel_CheckHealth(t *testing.T) {
	const origin = "http://localhost:5173"

	t.Run("responsive popup", func(t *testing.T) {
		bus := popup.NewBus(origin)
		opener := &fakeOpener{}
		channel := popup.NewChannel(opener, bus.Opener())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		relay := popup.NewRelay(bus.Popup(), nil, nil)
		go relay.ServeHealth(ctx)

		results := openAsync(channel, ctx, "u")
		require.True(t, channel.CheckHealth(time.Second))

		bus.Popup().Post(popup.Message{Type: popup.MessageOAuthSuccess, JWT: "jwt"})
		require.NoError(t, (<-results).err)
	})

	t.Run("unresponsive popup", func(t *testing.T) {
		bus := popup.NewBus(origin)
		opener := &fakeOpener{}
		channel := popup.NewChannel(opener, bus.Opener())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		results := openAsync(channel, ctx, "u")
		require.False(t, channel.CheckHealth(30*time.Millisecond))

		cancel()
		require.ErrorIs(t, (<-results).err, errs.ErrCancelled)
	})
}
