package obs

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	Level   string
	Pretty  bool
	Service string
	Env     string
	Version string
	// SampleFirst entries per second per message are kept, then every
	// SampleThereafter-th. Zero disables sampling.
	SampleFirst      int
	SampleThereafter int
}

// Field keys whose string values never reach the output.
var redactedKeys = map[string]struct{}{
	"password":      {},
	"new_password":  {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"authorization": {},
	"cookie":        {},
}

const redacted = "[REDACTED]"

func NewLogger(c LogConfig) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if c.Pretty {
		cfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build(
		zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			var out zapcore.Core = RedactCore(core)
			if c.SampleFirst > 0 {
				out = zapcore.NewSamplerWithOptions(out, time.Second, c.SampleFirst, c.SampleThereafter)
			}
			return out
		}),
		zap.Fields(
			zap.String("service", c.Service),
			zap.String("env", c.Env),
			zap.String("version", c.Version),
		),
	)
}

// RedactCore masks string fields named like credentials before they are
// encoded.
func RedactCore(core zapcore.Core) zapcore.Core { return redactCore{core} }

type redactCore struct{ zapcore.Core }

func (c redactCore) With(fs []zapcore.Field) zapcore.Core {
	return redactCore{c.Core.With(redact(fs))}
}

func (c redactCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c redactCore) Write(e zapcore.Entry, fs []zapcore.Field) error {
	return c.Core.Write(e, redact(fs))
}

func redact(fs []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fs {
		if f.Type != zapcore.StringType {
			continue
		}
		if _, hit := redactedKeys[strings.ToLower(f.Key)]; !hit {
			continue
		}
		if out == nil {
			out = append([]zapcore.Field(nil), fs...)
		}
		out[i] = zap.String(f.Key, redacted)
	}
	if out == nil {
		return fs
	}
	return out
}
