package core

import (
	"context"

	"trustescrow/core/types"
)

// Activity is one committed engine event, delivered to sinks only after the
// transaction that produced it has been written.
type Activity struct {
	Operation  string            `json:"operation"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	At         int64             `json:"at"`
}

// ActivitySink consumes committed activity. Errors are logged by the façade;
// they never roll back the state change.
type ActivitySink interface {
	Publish(ctx context.Context, entries []Activity) error
}

// ActivityFunc adapts a function to ActivitySink.
type ActivityFunc func(ctx context.Context, entries []Activity) error

func (f ActivityFunc) Publish(ctx context.Context, entries []Activity) error {
	return f(ctx, entries)
}

type noopSink struct{}

func (noopSink) Publish(context.Context, []Activity) error { return nil }

func toActivity(operation string, at int64, evts []*types.Event) []Activity {
	out := make([]Activity, 0, len(evts))
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		clone := evt.Clone()
		out = append(out, Activity{
			Operation:  operation,
			Type:       clone.Type,
			Attributes: clone.Attributes,
			At:         at,
		})
	}
	return out
}
