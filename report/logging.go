package report

import (
	"go.uber.org/zap"

	"display-rpc/codec"
	"display-rpc/message"
)

// LoggingReport writes reports to a zap logger. Successful invocations are
// logged at debug level, anything that went wrong at warn or error.
type LoggingReport struct {
	log *zap.Logger
}

func NewLoggingReport(log *zap.Logger) *LoggingReport {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingReport{log: log.Named("channel")}
}

func (r *LoggingReport) InvocationSucceeded(inv *message.Invocation) {
	r.log.Debug("invocation sent", zap.Uint64("id", inv.ID), zap.String("method", inv.MethodName))
}

func (r *LoggingReport) InvocationFailed(inv *message.Invocation, err error) {
	r.log.Error("invocation failed", zap.Uint64("id", inv.ID), zap.String("method", inv.MethodName), zap.Error(err))
}

func (r *LoggingReport) ResultReceiptFailed(err error) {
	r.log.Warn("result receipt failed", zap.Error(err))
}

func (r *LoggingReport) OrphanedResult(id uint64) {
	r.log.Warn("result for unknown call", zap.Uint64("id", id))
}

func (r *LoggingReport) EventParsingFailed(err error) {
	r.log.Warn("event parsing failed", zap.Error(err))
}

func (r *LoggingReport) DescriptorsReceived(shape codec.Shape, fds []int) {
	r.log.Debug("descriptors received", zap.String("shape", string(shape)), zap.Ints("fds", fds))
}

func (r *LoggingReport) DescriptorWaitFailed(shape codec.Shape, err error) {
	r.log.Warn("descriptor wait failed", zap.String("shape", string(shape)), zap.Error(err))
}

func (r *LoggingReport) DescriptorsDiscarded(id uint64, n int) {
	r.log.Warn("unclaimed descriptors closed", zap.Uint64("id", id), zap.Int("count", n))
}

func (r *LoggingReport) ConnectionFailure(err error) {
	r.log.Error("connection failure", zap.Error(err))
}
