package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/errs"
	"hazardsync/internal/ports"
)

const natsConnectTimeout = 2 * time.Second

// NATSSignals carries change signals between processes over a NATS subject.
// Messages have an empty body; any message on the subject means "fetch".
type NATSSignals struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	local   *Broadcaster
}

var _ ports.ChangeSignals = (*NATSSignals)(nil)

func DialNATS(ctx context.Context, url string, subject string, clientName string) (*NATSSignals, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, errors.New("nats subject is required")
	}

	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.Timeout(natsConnectTimeout),
		nats.NoEcho(),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn(ctx, "nats disconnected", slog.Any("err", errs.Loggable(err)))
			}
		}),
	)
	if err != nil {
		return nil, classifyNATSError(errs.Wrapf(err, "connect nats %s", url))
	}

	signals := &NATSSignals{
		conn:    conn,
		subject: subject,
		local:   NewBroadcaster(),
	}
	sub, err := conn.Subscribe(subject, func(*nats.Msg) {
		_ = signals.local.Notify(context.Background())
	})
	if err != nil {
		conn.Close()
		return nil, classifyNATSError(errs.Wrapf(err, "subscribe %s", subject))
	}
	signals.sub = sub

	logging.Info(ctx, "nats change signals connected",
		slog.String("url", conn.ConnectedUrl()),
		slog.String("subject", subject),
	)
	return signals, nil
}

func (s *NATSSignals) Notify(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := s.conn.Publish(s.subject, nil); err != nil {
		return classifyNATSError(errs.Wrapf(err, "publish %s", s.subject))
	}
	return nil
}

func (s *NATSSignals) Subscribe(ctx context.Context) (<-chan struct{}, func(), error) {
	return s.local.Subscribe(ctx)
}

func (s *NATSSignals) Close() error {
	var err error
	if s.sub != nil {
		err = s.sub.Unsubscribe()
	}
	if drainErr := s.conn.Drain(); drainErr != nil && err == nil {
		err = drainErr
	}
	_ = s.local.Close()
	if err != nil {
		return errs.Wrap(err, "close nats signals")
	}
	return nil
}

func classifyNATSError(err error) error {
	if errors.Is(err, nats.ErrAuthorization) || errors.Is(err, nats.ErrAuthExpired) {
		return errs.Mark(err, errs.ErrAuth)
	}
	return errs.Mark(err, errs.ErrTransport)
}
