package cachering

import (
	"io"
	"log/slog"
)

// options configures rings, leave plans and trackers (internal only).
type options struct {
	hashFunc     HashFunc
	tieBreak     TieBreak
	senderPolicy SenderPolicy
	handler      TransferHandler
	logger       *slog.Logger
}

// defaultOptions returns sensible defaults.
func defaultOptions() options {
	return options{
		hashFunc:     MD5Hash,
		tieBreak:     LexicographicTieBreak,
		senderPolicy: SenderPrimaryOwner,
		handler:      nopHandler{},
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func applyOptions(opts []Option) options {
	var o = defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option is a functional option for configuring a Ring, a LeavePlan or a
// Tracker. Options that do not apply to a component are ignored by it.
type Option func(*options)

// WithHashFunc sets the hash used to place members and keys on the ring.
// DEFAULT: MD5Hash
func WithHashFunc(fn HashFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.hashFunc = fn
		}
	}
}

// WithTieBreak sets the comparison used when two members hash to the same
// position.
// DEFAULT: LexicographicTieBreak
func WithTieBreak(fn TieBreak) Option {
	return func(o *options) {
		if fn != nil {
			o.tieBreak = fn
		}
	}
}

// WithSenderPolicy chooses which surviving owner pushes a slot to its newly
// added owner.
// DEFAULT: SenderPrimaryOwner
func WithSenderPolicy(p SenderPolicy) Option {
	return func(o *options) {
		o.senderPolicy = p
	}
}

// WithTransferHandler sets the collaborator a Tracker hands leave events to.
// DEFAULT: a handler that does nothing
func WithTransferHandler(h TransferHandler) Option {
	return func(o *options) {
		if h == nil {
			o.handler = nopHandler{}
			return
		}
		o.handler = h
	}
}

// WithLogger sets the logger for the tracker.
// If the logger is nil, the tracker will use a no-op logger.
// DEFAULT: A no-op logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			return
		}

		o.logger = logger
	}
}
