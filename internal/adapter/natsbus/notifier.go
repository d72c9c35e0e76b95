package natsbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/port"
)

// SubjectPrefix is followed by the account id.
const SubjectPrefix = "perp.adl."

var _ port.Notifier = (*Notifier)(nil)

// Notifier tells deleveraged accounts about forced reductions over NATS.
type Notifier struct {
	conn *nats.Conn
}

func Connect(url string, log logrus.FieldLogger) (*Notifier, error) {
	opts := []nats.Option{
		nats.Name("perp-engine"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "nats: connect")
	}
	return &Notifier{conn: conn}, nil
}

func Subject(accountID string) string { return SubjectPrefix + accountID }

func (n *Notifier) Notify(ctx context.Context, accountID string, ev domain.ADLEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "nats: encode adl event")
	}
	return errors.Wrapf(n.conn.Publish(Subject(accountID), data), "nats: notify %s", accountID)
}

func (n *Notifier) Close() {
	n.conn.Close()
}
