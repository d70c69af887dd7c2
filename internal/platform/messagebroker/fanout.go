package messagebroker

import (
	"context"
	"errors"
)

// Fanout publishes every message to each publisher in order. A failing
// publisher does not stop delivery to the rest; their errors are joined.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, subject string, data []byte) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, subject, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() {
	for _, p := range f {
		p.Close()
	}
}
