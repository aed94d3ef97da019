// Package publish delivers tracker outputs to downstream consumers.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/teslashibe/go-human/internal/observability"
	"github.com/teslashibe/go-human/pkg/protocol"
)

// Publisher delivers one human message.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, h protocol.HumanData) error
}

// Multi fans a message out to several publishers. A failing sink does not
// stop delivery to the others.
type Multi []Publisher

// Name implements Publisher.
func (m Multi) Name() string { return "multi" }

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, h protocol.HumanData) error {
	var errs []error
	for _, p := range m {
		err := p.Publish(ctx, h)
		if err != nil {
			observability.Published.WithLabelValues(p.Name(), "error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		observability.Published.WithLabelValues(p.Name(), "ok").Inc()
	}
	return errors.Join(errs...)
}
