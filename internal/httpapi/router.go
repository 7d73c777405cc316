package httpapi

import "net/http"

// NewMux registers every route. Write and admin routes sit behind the
// bearer check.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	auth := RequireBearer(d.IngestSecret)

	ih := IngestHandler{Pipeline: d.Pipeline, Hub: d.Hub, MaxBodyBytes: d.MaxBodyBytes}
	mux.Handle("/{$}", auth(methodMux(map[string]http.HandlerFunc{
		http.MethodPost: ih.Post,
	})))

	rh := RunHandler{Runner: d.Runner}
	mux.Handle("/ingest", auth(methodMux(map[string]http.HandlerFunc{
		http.MethodGet: rh.Run,
	})))

	hh := HealthHandler{Store: d.Store}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Health,
	}))

	sh := StatsHandler{Store: d.Store, Queue: d.Queue, Runner: d.Runner}
	mux.HandleFunc("/stats", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.Stats,
	}))

	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))
	mux.HandleFunc("/events/ws", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeWS,
	}))

	if d.CfgVal != nil {
		ch := ConfigHandler{Deps: d}
		mux.Handle("/config", auth(methodMux(map[string]http.HandlerFunc{
			http.MethodGet: ch.Get,
			http.MethodPut: ch.Put,
		})))
		mux.Handle("/config/validate", auth(methodMux(map[string]http.HandlerFunc{
			http.MethodPost: ch.Validate,
		})))
	}

	if len(d.SecretAccounts) > 0 {
		sec := SecretsHandler{Accounts: d.SecretAccounts}
		mux.Handle("/secrets/{name}", auth(methodMux(map[string]http.HandlerFunc{
			http.MethodPut:    sec.Set,
			http.MethodDelete: sec.Delete,
		})))
	}

	return mux
}

// NewHandler is NewMux wrapped in the standard middleware chain.
func NewHandler(d Deps) http.Handler {
	return Chain(NewMux(d), RequestID, Recover, AccessLog)
}
