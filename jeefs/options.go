package jeefs

// Logger receives debug traces from file-chain operations. Integrate
// any logging framework by adapting it to this interface; by default
// nothing is logged.
type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

// Option configures an FS.
type Option func(*FS)

// WithLogger attaches a debug logger to the file system.
func WithLogger(l Logger) Option {
	return func(f *FS) {
		if l != nil {
			f.log = l
		}
	}
}
