// Package server wraps http.Server with graceful shutdown and an
// errgroup-compatible run function for coordinated lifecycle management.
//
// The console gateway binds a loopback address by default; the listen
// address and timeouts come from SERVER_* environment variables:
//
//	srv, err := server.NewFromConfig(cfg, server.WithLogger(log))
//	if err != nil { ... }
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(srv.Run(ctx, router))
package server
