package popup

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	errs "github.com/cryptodash/zklogin/internal/errors"
)

const (
	// defaultTimeout guards against the provider hanging or the relay never
	// delivering a result.
	defaultTimeout = 5 * time.Minute

	// defaultPollInterval is how often the channel checks whether the user
	// closed the popup without completing authorization.
	defaultPollInterval = time.Second
)

// Channel drives one popup attempt from the main-window side. Open blocks
// until exactly one terminal outcome fires: resolved with the identity token,
// rejected by the provider, cancelled by the user closing the window, or
// timed out.
type Channel struct {
	opener       Opener
	endpoint     *Endpoint
	timeout      time.Duration
	pollInterval time.Duration
	log          zerolog.Logger

	healthResponses chan struct{}
}

// ChannelOption configures the Channel.
type ChannelOption func(*Channel)

// WithTimeout overrides the no-result timeout.
func WithTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) {
		c.timeout = d
	}
}

// WithPollInterval overrides the closed-window poll interval.
func WithPollInterval(d time.Duration) ChannelOption {
	return func(c *Channel) {
		c.pollInterval = d
	}
}

// NewChannel creates a channel that opens windows through opener and receives
// relay messages on endpoint.
func NewChannel(opener Opener, endpoint *Endpoint, options ...ChannelOption) *Channel {
	c := &Channel{
		opener:          opener,
		endpoint:        endpoint,
		timeout:         defaultTimeout,
		pollInterval:    defaultPollInterval,
		log:             log.With().Str("component", "popup").Logger(),
		healthResponses: make(chan struct{}, 1),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Open opens a popup at url and waits for its settlement. The returned error
// is one of ErrPopupBlocked (synchronous), ErrRejected, ErrCancelled or
// ErrTimedOut; on success the identity token is returned. Whatever the
// outcome, the popup is closed and all timers are torn down before Open
// returns, and no second outcome can fire.
func (c *Channel) Open(ctx context.Context, url string) (string, error) {
	window, err := c.opener.Open(url)
	if err != nil || window == nil {
		return "", errs.Wrapf(errs.ErrPopupBlocked, "[Channel.Open] %v", err)
	}
	defer window.Close()

	timeout := time.NewTimer(c.timeout)
	defer timeout.Stop()
	poll := time.NewTicker(c.pollInterval)
	defer poll.Stop()

	for {
		select {
		case msg := <-c.endpoint.Messages():
			if msg.Origin != c.endpoint.Origin() {
				c.log.Debug().Str("origin", msg.Origin).Msg("ignoring message from foreign origin")
				continue
			}
			switch msg.Type {
			case MessageOAuthSuccess:
				c.log.Debug().Str("provider", msg.Provider).Msg("authorization succeeded")
				return msg.JWT, nil
			case MessageOAuthError:
				return "", errs.Wrapf(errs.ErrRejected, "[Channel.Open] %s", msg.Error)
			case MessageHealthResponse:
				select {
				case c.healthResponses <- struct{}{}:
				default:
				}
			}
			// Anything else is not protocol input.

		case <-poll.C:
			if window.Closed() {
				// The relay closes its window right after posting; a result
				// already in the mailbox wins over the close.
				select {
				case msg := <-c.endpoint.Messages():
					if msg.Origin == c.endpoint.Origin() {
						switch msg.Type {
						case MessageOAuthSuccess:
							return msg.JWT, nil
						case MessageOAuthError:
							return "", errs.Wrapf(errs.ErrRejected, "[Channel.Open] %s", msg.Error)
						}
					}
				default:
				}
				return "", errs.Wrapf(errs.ErrCancelled, "[Channel.Open] popup closed before a result was received")
			}

		case <-timeout.C:
			return "", errs.Wrapf(errs.ErrTimedOut, "[Channel.Open] no result within %s", c.timeout)

		case <-ctx.Done():
			return "", errs.Wrapf(errs.ErrCancelled, "[Channel.Open] %v", ctx.Err())
		}
	}
}

// CheckHealth posts a health-check to the popup and reports whether a
// response arrives within wait. It runs on the same mailbox as Open, so it is
// only meaningful while an Open is in flight to forward the response.
func (c *Channel) CheckHealth(wait time.Duration) bool {
	// Drain any stale response first.
	select {
	case <-c.healthResponses:
	default:
	}
	c.endpoint.Post(Message{Type: MessageHealthCheck})
	select {
	case <-c.healthResponses:
		return true
	case <-time.After(wait):
		return false
	}
}
