package api

import (
	"net/http"

	"CoopLedgerSaas/api/constants"

	"github.com/gorilla/mux"
)

// HealthReporter reports the state of registered dependencies.
type HealthReporter interface {
	Health() (map[string]string, bool)
}

// NewRouter builds the root router. /healthz is open; every route added by
// mount sits behind the operator middleware.
func NewRouter(health HealthReporter, mount func(*mux.Router)) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestLogger)
	router.NotFoundHandler = RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RespondWithError(w, nil, constants.ErrRouteNotFound, http.StatusNotFound)
	}))
	router.MethodNotAllowedHandler = RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RespondWithError(w, nil, constants.ErrMethodNotAllowed, http.StatusMethodNotAllowed)
	}))

	router.HandleFunc("/healthz", HealthHandler(health)).Methods(http.MethodGet)

	protected := router.PathPrefix("/").Subrouter()
	protected.Use(OperatorMiddleware)
	if mount != nil {
		mount(protected)
	}
	return router
}

// HealthHandler answers 200 when every dependency responds and 503 otherwise.
func HealthHandler(health HealthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health == nil {
			RespondWithJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
			return
		}
		checks, ok := health.Health()
		status, code := "ok", http.StatusOK
		if !ok {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		RespondWithJSON(w, code, map[string]interface{}{"status": status, "checks": checks})
	}
}
