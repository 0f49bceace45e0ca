package mirror

import (
	"github.com/vinayprograms/kvmirror/codec"
	"github.com/vinayprograms/kvmirror/logging"
)

// settings is the untyped form of the options; the codec parts are checked
// against the engine's value type in New.
type settings struct {
	codec      any
	serializer any
	parser     any
	sink       ErrorSink
	logger     *logging.Logger
	sync       bool
}

// Option configures an Engine.
type Option func(*settings)

// WithCodec replaces the default JSON codec.
func WithCodec[T any](c codec.Codec[T]) Option {
	return func(s *settings) {
		s.codec = c
	}
}

// WithSerializer overrides only the serialize half of the codec.
func WithSerializer[T any](fn func(T) (string, error)) Option {
	return func(s *settings) {
		s.serializer = codec.Serializer[T](fn)
	}
}

// WithParser overrides only the deserialize half of the codec.
func WithParser[T any](fn func(string) (T, error)) Option {
	return func(s *settings) {
		s.parser = codec.Parser[T](fn)
	}
}

// WithErrorSink sets where failures are reported.
// Default: LogSink of the engine logger.
func WithErrorSink(sink ErrorSink) Option {
	return func(s *settings) {
		s.sink = sink
	}
}

// WithLogger sets the engine logger.
// Default: stdout at INFO.
func WithLogger(l *logging.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithSyncAcrossContexts controls whether notifications from other contexts
// are applied. When false, only notifications originating in the engine's
// own context (its own echoes and those of sibling engines) are applied.
// Default: true.
func WithSyncAcrossContexts(enabled bool) Option {
	return func(s *settings) {
		s.sync = enabled
	}
}
