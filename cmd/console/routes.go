package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ferdifleet/console/core/role"
	"github.com/ferdifleet/console/middleware"
)

// routes assembles the gateway's HTTP surface: auth and session endpoints,
// the backend API proxy, and the role-gated console sections.
func (a *app) routes(apiProxy http.Handler) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.LoggingWithConfig(middleware.LoggingConfig{
		Logger: a.log,
		Skip: func(req *http.Request) bool {
			return req.URL.Path == "/live" || req.URL.Path == "/session/events"
		},
	}))

	r.HandleFunc("/live", a.handleLive).Methods(http.MethodGet)

	r.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", a.handleLogout).Methods(http.MethodPost)

	// Session endpoints are deliberately unguarded: the UI polls them to
	// decide whether to show the login screen in the first place.
	r.HandleFunc("/session", a.handleSession).Methods(http.MethodGet)
	r.HandleFunc("/session/activity", a.handleActivity).Methods(http.MethodPost)
	r.HandleFunc("/session/extend", a.handleExtend).Methods(http.MethodPost)
	r.HandleFunc("/session/events", a.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/session/warning/dismiss", a.handleDismissWarning).Methods(http.MethodPost)
	r.HandleFunc("/session/online", a.handleOnline).Methods(http.MethodPost)

	// Everything under /api goes to the backend with the session token
	// injected. The backend authorizes each call on its own.
	r.PathPrefix("/api/").Handler(apiProxy)

	// Console sections follow the role navigation table: each role sees
	// exactly the prefixes it was granted, nothing is inferred.
	sections := r.PathPrefix("/").Subrouter()
	sections.Use(middleware.Guard(middleware.GuardConfig{
		Sessions:         a.sessions,
		AllowPathsByRole: true,
	}))

	sections.HandleFunc("/admin/dashboard", a.handleSection("admin",
		role.CapCompaniesManage, role.CapUsersManage)).Methods(http.MethodGet)
	sections.HandleFunc("/dashboard", a.handleSection("dashboard")).Methods(http.MethodGet)
	sections.HandleFunc("/companies", a.handleSection("companies",
		role.CapCompaniesManage)).Methods(http.MethodGet)
	sections.HandleFunc("/users", a.handleSection("users",
		role.CapUsersManage)).Methods(http.MethodGet)
	sections.HandleFunc("/fleet", a.handleSection("fleet",
		role.CapVehiclesManage)).Methods(http.MethodGet)
	sections.HandleFunc("/missions", a.handleSection("missions",
		role.CapMissionsManage)).Methods(http.MethodGet)
	sections.HandleFunc("/missions/my", a.handleSection("missions",
		role.CapMissionsManage)).Methods(http.MethodGet)
	sections.HandleFunc("/planning", a.handleSection("planning",
		role.CapPlanningView)).Methods(http.MethodGet)
	sections.HandleFunc("/invoicing", a.handleSection("invoicing",
		role.CapInvoicesView)).Methods(http.MethodGet)
	sections.HandleFunc("/quotes", a.handleSection("quotes",
		role.CapQuotesManage)).Methods(http.MethodGet)
	sections.HandleFunc("/partners", a.handleSection("partners",
		role.CapPartnersManage)).Methods(http.MethodGet)

	return r
}
