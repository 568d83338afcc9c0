package cmd

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/danpilch/flamegraph/pkg/backend"
)

// CommonOptions carries the process-wide dependencies of a command.
type CommonOptions struct {
	Ctx      context.Context
	Logger   *logrus.Logger
	Env      backend.Env
	Progress backend.Progress
	Opener   func(path string) error
}

type Option func(o *CommonOptions)

func NewCommonOptions(opts ...Option) *CommonOptions {
	o := new(CommonOptions)
	for _, f := range opts {
		f(o)
	}
	if o.Ctx == nil {
		o.Ctx = context.Background()
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}

	return o
}

func WithContext(ctx context.Context) Option {
	return func(o *CommonOptions) {
		o.Ctx = ctx
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(o *CommonOptions) {
		o.Logger = logger
	}
}

func WithEnv(env backend.Env) Option {
	return func(o *CommonOptions) {
		o.Env = env
	}
}

// WithProgress shows progress while traces are extracted.
func WithProgress(p backend.Progress) Option {
	return func(o *CommonOptions) {
		o.Progress = p
	}
}

// WithOpener replaces the viewer used by --open.
func WithOpener(opener func(path string) error) Option {
	return func(o *CommonOptions) {
		o.Opener = opener
	}
}
