// Package middleware provides net/http middleware for the console gateway:
// request ID propagation, structured request logging, and the role-based
// route guard that protects console sections.
//
// Middleware compose via plain func(http.Handler) http.Handler wrappers and
// are registered with the router's Use method:
//
//	r := mux.NewRouter()
//	r.Use(middleware.RequestID())
//	r.Use(middleware.Logging(log))
//
//	admin := r.PathPrefix("/admin").Subrouter()
//	admin.Use(middleware.Guard(middleware.GuardConfig{
//		Sessions:     mgr,
//		AllowedRoles: []role.ID{role.PlatformAdmin},
//	}))
package middleware
