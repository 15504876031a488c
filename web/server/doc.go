// Package server manages the HTTP server lifecycle with graceful shutdown.
//
// [Server.Run] serves until its context is done, then runs the
// registered shutdown functions in order and drains in-flight requests.
// Signal handling belongs to the caller:
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	srv := server.New(app,
//		server.WithHost(":8080"),
//		server.WithShutdownFunc(func(ctx context.Context) error {
//			return runs.Close(ctx)
//		}),
//	)
//	if err := srv.Run(ctx); err != nil {
//		return err
//	}
package server
