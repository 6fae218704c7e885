// Package bootstrap runs the service lifecycle: typed configuration,
// component registration, startup and shutdown hooks, the startup summary,
// and graceful shutdown on SIGINT/SIGTERM.
//
//	app, err := bootstrap.NewApp(&cfg)
//	if err != nil {
//	    return err
//	}
//	app.RegisterComponent(pool)
//	app.RegisterComponent(srv)
//	app.OnStop(func(ctx context.Context) error { routes.Close(); return nil })
//	return app.Run(ctx)
//
// Components start in registration order and stop in reverse.
package bootstrap
