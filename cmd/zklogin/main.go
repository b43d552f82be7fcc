package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cryptodash/zklogin/ephemeral"
	"github.com/cryptodash/zklogin/flow"
	"github.com/cryptodash/zklogin/flow/attemptrepo"
	"github.com/cryptodash/zklogin/internal/config"
	"github.com/cryptodash/zklogin/ledger"
	"github.com/cryptodash/zklogin/popup"
	"github.com/cryptodash/zklogin/prover"
	"github.com/cryptodash/zklogin/providers"
	"github.com/cryptodash/zklogin/salt"
	"github.com/cryptodash/zklogin/session"
	"github.com/cryptodash/zklogin/storage"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("error running zklogin")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	c := config.New()
	configureLogging(c)
	displayAppname(c.GetAppName())

	kv, err := storage.NewFileKV(c.GetDataFile())
	if err != nil {
		return fmt.Errorf("storage.NewFileKV: %w", err)
	}

	registry, err := providers.NewRegistry(c.GetDefaultProvider(),
		providers.Google(c.GetGoogleClientID(), c.GetGoogleClientSecret(), c.GetRedirectURI()))
	if err != nil {
		return fmt.Errorf("providers.NewRegistry: %w", err)
	}

	credentials, err := ephemeral.New(
		ledger.NewClient(c.GetFullnodeURL()),
		prover.NewClient(c.GetProverURL()),
		ephemeral.WithEpochWindow(c.GetEpochWindow()))
	if err != nil {
		return fmt.Errorf("ephemeral.New: %w", err)
	}

	attempts := attemptrepo.NewKVRepo(kv)
	opener := newBrowserOpener()
	bus := popup.NewBus(c.GetOrigin())

	relay := popup.NewRelay(bus.Popup(), registry, registry,
		popup.WithAttemptHints(attemptrepo.NewHints(attempts)),
		popup.WithCloseFunc(opener.closeLast))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go relay.ServeHealth(ctx)

	srv := &http.Server{Addr: c.GetPort(), Handler: popup.NewRelayHandler(relay, "/callback")}
	go listenAndServe(srv)

	sessions := session.NewStore(kv, session.WithAddressCheck(checkAddress))

	orchestrator, err := flow.New(flow.Deps{
		Credentials: credentials,
		Salts:       salt.New(salt.NewKVRepo(kv)),
		URLs:        registry,
		Popup: popup.NewChannel(opener, bus.Opener(),
			popup.WithTimeout(c.GetPopupTimeout()),
			popup.WithPollInterval(c.GetPopupPollInterval())),
		Sessions: sessions,
		Attempts: attempts,
	})
	if err != nil {
		return fmt.Errorf("flow.New: %w", err)
	}

	if err := login(ctx, orchestrator, c.GetDefaultProvider()); err != nil {
		log.Warn().Err(err).Msg("login failed")
	}

	<-ctx.Done()
	return shutdown(srv)
}

func login(ctx context.Context, orchestrator *flow.Orchestrator, providerID string) error {
	existing, err := orchestrator.Current()
	if err != nil {
		return err
	}
	if existing != nil {
		log.Info().Str("address", existing.Address).Str("email", existing.User.Email).Msg("session restored")
		return nil
	}

	sess, err := orchestrator.Start(ctx, providerID)
	if err != nil {
		return err
	}
	log.Info().Str("address", sess.Address).Str("email", sess.User.Email).Msg("signed in")
	return nil
}

// checkAddress revalidates a restored session's address against its token and
// salt before trusting it.
func checkAddress(identityToken, userSalt, address string) error {
	derived, err := ephemeral.DeriveAddress(identityToken, userSalt)
	if err != nil {
		return err
	}
	if derived != address {
		return errors.New("stored address does not match token and salt")
	}
	return nil
}

func configureLogging(c config.Config) {
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("callback server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

// browserWindow tracks the lifecycle of a system-browser tab. The OS gives no
// closed signal for a tab, so Closed flips only when the relay finishes and
// closes it through the opener.
type browserWindow struct {
	mu     sync.Mutex
	closed bool
}

func (w *browserWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *browserWindow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// browserOpener opens authorization URLs in the system browser.
type browserOpener struct {
	mu   sync.Mutex
	last *browserWindow
}

func newBrowserOpener() *browserOpener {
	return &browserOpener{}
}

func (o *browserOpener) Open(url string) (popup.Window, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	w := &browserWindow{}
	o.mu.Lock()
	o.last = w
	o.mu.Unlock()
	return w, nil
}

// closeLast closes the most recently opened window. Wired to the relay so
// the opener side sees the window settle.
func (o *browserOpener) closeLast() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last != nil {
		o.last.Close()
	}
}
