package docstore

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix namespaces change notifications on the NATS server.
const DefaultSubjectPrefix = "taskboard.changes"

// NATSFeed relays change notifications through a NATS server so that every
// process sharing the database sees writes made by the others.
type NATSFeed struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSFeed connects to url. An empty prefix uses DefaultSubjectPrefix.
func NewNATSFeed(url, prefix string) (*NATSFeed, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	nc, err := nats.Connect(url,
		nats.Name("taskboard"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSFeed{nc: nc, prefix: prefix}, nil
}

var subjectReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "/", ".")

// Subject maps a collection path onto a NATS subject.
func (f *NATSFeed) Subject(collection string) string {
	return f.prefix + "." + subjectReplacer.Replace(strings.Trim(collection, "/"))
}

func (f *NATSFeed) Publish(collection string) {
	if err := f.nc.Publish(f.Subject(collection), nil); err != nil {
		log.Printf("[warn] publish change %s: %v", collection, err)
	}
}

func (f *NATSFeed) Watch(collection string, notify func()) func() {
	sub, err := f.nc.Subscribe(f.Subject(collection), func(*nats.Msg) {
		notify()
	})
	if err != nil {
		log.Printf("[warn] watch %s: %v", collection, err)
		return func() {}
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			log.Printf("[warn] unwatch %s: %v", collection, err)
		}
	}
}

// Close drains pending notifications and closes the connection.
func (f *NATSFeed) Close() error {
	return f.nc.Drain()
}
