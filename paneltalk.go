// Package paneltalk provides a top-level convenience entry point for running
// panel discussions with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/paneltalk"
//
//	events, err := paneltalk.Run(ctx, "Should cities ban private cars?")
//	events, err := paneltalk.Run(ctx, topic,
//	    paneltalk.WithSpeakers(mySpeakers),
//	    paneltalk.WithMaxTurns(8),
//	)
//
// This is a thin wrapper around [session.Manager] with the built-in persona
// roster and the offline template generator as defaults. Use the session and
// generator packages directly when you need an OpenAI-backed panel, persistent
// speaker profiles, or lifecycle control over multiple sessions.
package paneltalk

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/paneltalk/dialogue"
	"github.com/BaSui01/paneltalk/generator"
	"github.com/BaSui01/paneltalk/persona"
	"github.com/BaSui01/paneltalk/session"
	"github.com/BaSui01/paneltalk/types"
)

// options collects the knobs [Run] exposes.
type options struct {
	speakers  []*types.Speaker
	generator dialogue.Generator
	maxTurns  int
	markers   []string
	logger    *zap.Logger
}

// Option configures the discussion started by [Run].
type Option func(*options)

// WithSpeakers sets the roster. Defaults to the built-in radio panel.
func WithSpeakers(speakers []*types.Speaker) Option {
	return func(o *options) { o.speakers = speakers }
}

// WithGenerator sets the turn generator. Defaults to the offline template
// generator; pass a [generator.Client] to back the panel with a real model.
func WithGenerator(g dialogue.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithMaxTurns overrides the successful-turn budget.
func WithMaxTurns(n int) Option {
	return func(o *options) { o.maxTurns = n }
}

// WithTerminationMarkers overrides the marker substrings that end the panel.
func WithTerminationMarkers(markers []string) Option {
	return func(o *options) { o.markers = markers }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Run starts a single panel discussion on topic and returns its event stream.
// The stream carries every turn in order and closes after exactly one
// termination event. Cancelling ctx ends the discussion early.
func Run(ctx context.Context, topic string, opts ...Option) (<-chan dialogue.Event, error) {
	o := &options{
		speakers:  persona.Defaults(),
		generator: generator.NewStatic(0),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	mgr := session.NewManager(session.DefaultConfig(),
		func([]*types.Speaker) dialogue.Generator { return o.generator },
		o.logger)

	_, events, err := mgr.Start(ctx, session.StartRequest{
		Topic:              topic,
		Speakers:           o.speakers,
		MaxTurns:           o.maxTurns,
		TerminationMarkers: o.markers,
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
