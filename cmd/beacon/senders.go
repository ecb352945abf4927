// senders.go builds the configured delivery targets.

package main

import (
	"context"
	"errors"
	"fmt"

	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	"go.uber.org/zap"

	"github.com/strongdm/ai-beacon/internal/config"
	"github.com/strongdm/ai-beacon/pkg/beacon"
	"github.com/strongdm/ai-beacon/pkg/beacon/senders/cxdb"
	"github.com/strongdm/ai-beacon/pkg/beacon/senders/httpsender"
	"github.com/strongdm/ai-beacon/pkg/beacon/senders/kafka"
	"github.com/strongdm/ai-beacon/pkg/beacon/senders/multi"
	"github.com/strongdm/ai-beacon/pkg/beacon/senders/noop"
	"github.com/strongdm/ai-beacon/pkg/beacon/senders/sqs"
	"github.com/strongdm/ai-beacon/pkg/beacon/senders/stderr"
)

// buildSender returns the sender for cfg.Senders, fanned out when more
// than one is configured. release closes connections the sender does not
// own and must run after the client is closed.
func buildSender(ctx context.Context, cfg *config.Config, log *zap.Logger) (sender beacon.Sender, release func(), err error) {
	var (
		list     []beacon.Sender
		releases []func()
	)
	release = func() {
		for _, fn := range releases {
			fn()
		}
	}
	defer func() {
		if err != nil {
			for _, s := range list {
				_ = s.Close()
			}
			for _, fn := range releases {
				fn()
			}
		}
	}()

	for _, kind := range cfg.Senders {
		switch kind {
		case config.SenderHTTP:
			list = append(list, httpsender.New(cfg.DSN, cfg.AppID, httpsender.WithGzip(cfg.Transport.Gzip)))

		case config.SenderStderr:
			var opts []stderr.Option
			if cfg.Verbose {
				opts = append(opts, stderr.WithVerbose())
			}
			list = append(list, stderr.New(opts...))

		case config.SenderSQS:
			api, err := sqs.NewAPI(ctx, cfg.SQS, log)
			if err != nil {
				return nil, nil, err
			}
			list = append(list, sqs.New(api, cfg.SQS.QueueURL, cfg.AppID))

		case config.SenderKafka:
			w, err := kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			if err != nil {
				return nil, nil, err
			}
			list = append(list, kafka.New(w, cfg.AppID))

		case config.SenderCXDB:
			client, err := cxdbclient.Dial(cfg.CXDB.Addr, cxdbclient.WithClientTag(cfg.CXDB.ClientTag))
			if err != nil {
				return nil, nil, fmt.Errorf("cxdb: dial %s: %w", cfg.CXDB.Addr, err)
			}
			releases = append(releases, func() { client.Close() })
			s, err := cxdb.New(client, cxdb.WithLabels(cfg.CXDB.Labels), cxdb.WithClientTag(cfg.CXDB.ClientTag))
			if err != nil {
				return nil, nil, err
			}
			list = append(list, s)

		case config.SenderNoop:
			list = append(list, noop.New())

		default:
			return nil, nil, fmt.Errorf("unknown sender %q", kind)
		}
		log.Debug("sender configured", zap.String("sender", kind))
	}

	switch len(list) {
	case 0:
		return nil, nil, errors.New("no senders configured")
	case 1:
		return list[0], release, nil
	default:
		return multi.New(list...), release, nil
	}
}
