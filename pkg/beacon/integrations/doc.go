// Package integrations provides the signal producers and pipeline
// customizations that can be installed on a beacon.Client.
//
// Each integration is constructed by the host and passed to
// beacon.NewClient with beacon.WithIntegrations. Setup binds it to the
// client; until then, and after Teardown, its capture methods are no-ops.
//
//	errs := integrations.NewErrors()
//	httpErrs := integrations.NewHTTPError()
//	client, err := beacon.NewClient(cfg,
//	    beacon.WithSender(sender),
//	    beacon.WithIntegrations(errs, httpErrs, integrations.NewMetrics(time.Minute)),
//	)
//
//	http.DefaultClient.Transport = httpErrs.RoundTripper(nil)
//	errs.Go(ctx, worker)
package integrations
