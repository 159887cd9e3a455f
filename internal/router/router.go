package router

import (
	"net/http"

	"github.com/genforge/backend/internal/dashboard"
)

// New returns an http.Handler that serves the account views under /api/v1.
// auth is applied to every route.
func New(dashHandler *dashboard.Handler, auth func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.Handle(base+"/credits", auth(methodGET(dashHandler.GetCredits)))
	mux.Handle(base+"/credit-logs", auth(methodGET(dashHandler.ListCreditLogs)))
	mux.Handle(base+"/activity", auth(methodGET(dashHandler.ListActivity)))

	return mux
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
