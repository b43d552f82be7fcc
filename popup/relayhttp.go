package popup

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// processingPage is served to the browser while the relay finishes the
// exchange in the background. The window closes itself once the relay posts
// its result.
const processingPage = `<!doctype html>
<html>
<head><title>Signing in</title></head>
<body><p>Processing authentication...</p></body>
</html>
`

// NewRelayHandler exposes relay over HTTP for deployments where the provider
// redirects to a loopback server instead of an in-process window. Both GET
// (query response mode) and POST (form_post response mode) callbacks are
// accepted on callbackPath.
func NewRelayHandler(relay *Relay, callbackPath string) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	handle := func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "malformed callback", http.StatusBadRequest)
			return
		}
		// r.Form merges query and body parameters, which covers both
		// response modes with one code path.
		redirect := *r.URL
		redirect.RawQuery = r.Form.Encode()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(processingPage))

		relay.HandleRedirect(r.Context(), &redirect)
	}

	router.Get(callbackPath, handle)
	router.Post(callbackPath, handle)
	return router
}
