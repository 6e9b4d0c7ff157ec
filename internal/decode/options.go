package decode

import "github.com/ashita-ai/kiroku/internal/ss58"

// Option configures extrinsic decoding.
type Option func(*options)

type options struct {
	strict     bool
	ss58Prefix uint16
}

func defaultOptions() options {
	return options{strict: true, ss58Prefix: ss58.DefaultPrefix}
}

// WithStrictLength controls whether bytes beyond the length prefix are an
// error. Enabled by default; when disabled the excess is ignored.
func WithStrictLength(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// WithSS58Prefix sets the network prefix used to render 32 byte addresses.
func WithSS58Prefix(prefix uint16) Option {
	return func(o *options) { o.ss58Prefix = prefix }
}
