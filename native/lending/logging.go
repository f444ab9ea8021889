package lending

import "log/slog"

// logOperation emits a structured log line for one completed mutating
// operation, following the teacher's JSON-structured slog convention
// (observability/logging.Setup) scoped to this module's own fields.
func logOperation(logger *slog.Logger, op string, user string, asset string, amount string, err error) {
	if logger == nil {
		return
	}
	attrs := []any{
		slog.String("module", moduleName),
		slog.String("operation", op),
		slog.String("user", user),
		slog.String("asset", asset),
		slog.String("amount", amount),
	}
	if err != nil {
		logger.Error("lending operation failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	logger.Info("lending operation completed", attrs...)
}
