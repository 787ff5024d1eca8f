package client

import (
	"time"

	"go.uber.org/zap"

	"display-rpc/codec"
	"display-rpc/report"
	"display-rpc/transport"
)

type options struct {
	codec         codec.Codec
	report        report.Report
	log           *zap.Logger
	surfaces      Surfaces
	displayConfig DisplayConfigObserver
	lifecycle     LifecycleObserver
	fdTimeout     time.Duration
	keepAlive     time.Duration
}

// Option configures a Channel.
type Option func(*options)

func defaultOptions() options {
	return options{
		codec:     &codec.JSONCodec{},
		log:       zap.NewNop(),
		fdTimeout: transport.DefaultDescriptorTimeout,
	}
}

func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithReport replaces the default report, which logs through the channel's logger.
func WithReport(r report.Report) Option {
	return func(o *options) { o.report = r }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithSurfaces(s Surfaces) Option {
	return func(o *options) { o.surfaces = s }
}

func WithDisplayConfigObserver(obs DisplayConfigObserver) Option {
	return func(o *options) { o.displayConfig = obs }
}

func WithLifecycleObserver(obs LifecycleObserver) Option {
	return func(o *options) { o.lifecycle = obs }
}

// WithDescriptorTimeout bounds how long the reader waits for the descriptors a
// reply announces.
func WithDescriptorTimeout(d time.Duration) Option {
	return func(o *options) { o.fdTimeout = d }
}

// WithKeepAlive sends a "ping" invocation every interval. Zero disables it.
func WithKeepAlive(interval time.Duration) Option {
	return func(o *options) { o.keepAlive = interval }
}
