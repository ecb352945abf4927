// Package beacon provides client-side telemetry capture and delivery.
//
// Host code and integrations push raw observations (errors, crashes,
// failed HTTP calls, resource failures, performance measurements, web
// vitals, session and replay data) into a Client. A single pipeline
// goroutine fingerprints, deduplicates, samples, enriches and classifies
// each observation, then queues it on a delivery tier. Tiers flush in
// batches to a Sender; failed batches are kept in a bounded offline
// store and resent later.
//
// # Core Components
//
//   - Client: owns the pipeline; the only entry point for host code
//   - Deduplicator: folds repeated fingerprints inside a time window
//   - Sampler: per-category admission with audit fields
//   - Enricher: session, scope, breadcrumbs and scrubbing
//   - Classifier and Transport: tiered batching with per-tier policies
//   - OfflineStore: event-bounded retry queue, optionally persisted
//   - Recorder: replay ring buffer captured around a trigger
//   - Integration: closed set of signal producers installed at setup
//   - Sender: batch destination (http, stderr, cxdb, sqs, kafka, multi)
//
// # Quick Start
//
//	cfg := beacon.DefaultConfig()
//	cfg.DSN = "https://ingest.example.com/v1/events"
//	client, err := beacon.NewClient(cfg,
//	    beacon.WithSender(httpsender.New(cfg.DSN, cfg.AppID)),
//	    beacon.WithIntegrations(integrations.NewErrors()),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	defer client.Recover(ctx)
//
// # Design Principles
//
//   - Capture never blocks and never fails: overload drops the oldest
//     queued observation, and every problem is logged and counted
//   - Fail-closed scrubbing: on any error, fields are fully redacted
//   - One pipeline goroutine: stages run to completion per observation
//   - Injectable clock: every timer runs on clock.Clock
package beacon
