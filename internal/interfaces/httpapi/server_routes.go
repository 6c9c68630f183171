package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler, swaggerEnabled bool) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
	if !swaggerEnabled {
		return
	}

	mux.HandleFunc("GET /openapi.yaml", handler.OpenAPI)
	mux.HandleFunc("GET /docs", handler.SwaggerUI)
	mux.HandleFunc("GET /docs/", handler.SwaggerUI)
}

func registerSessionRoutes(mux *http.ServeMux, handler *Handler, sessions SessionResolver) {
	mux.Handle("GET /v1/session", RequireAuth(sessions, http.HandlerFunc(handler.GetSession)))
	mux.Handle("POST /v1/session/sign-out", RequireAuth(sessions, http.HandlerFunc(handler.SignOut)))
}

func registerLeagueRoutes(mux *http.ServeMux, handler *Handler, sessions SessionResolver) {
	mux.Handle("POST /v1/leagues", RequireAuth(sessions, http.HandlerFunc(handler.CreateLeague)))
	mux.Handle("POST /v1/leagues/join", RequireAuth(sessions, http.HandlerFunc(handler.JoinLeague)))
	mux.Handle("GET /v1/leagues/me", RequireAuth(sessions, http.HandlerFunc(handler.ListMyLeagues)))
	mux.Handle("GET /v1/leagues/{leagueID}", RequireAuth(sessions, http.HandlerFunc(handler.GetLeague)))
	mux.Handle("GET /v1/leagues/{leagueID}/members", RequireAuth(sessions, http.HandlerFunc(handler.ListLeagueMembers)))
}

func registerDashboardRoutes(mux *http.ServeMux, handler *Handler, sessions SessionResolver) {
	// Without a session the dashboard answers 401 carrying the auth entry redirect.
	mux.Handle("GET /v1/dashboard", OptionalAuth(sessions, http.HandlerFunc(handler.GetDashboard)))
	mux.Handle("GET /v1/dashboard/live", RequireAuthOrQueryToken(sessions, http.HandlerFunc(handler.LiveDashboard)))
}
