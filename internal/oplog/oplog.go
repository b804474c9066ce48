// Package oplog adapts domain operation logs onto zap.
package oplog

import (
	"context"

	"github.com/junolabs/qrpoints/pkg/qrcode"
	"go.uber.org/zap"
)

// ZapOperationLogger forwards qrcode.OperationLog entries to a zap logger.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wires the adapter.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger}
}

// LogOperation implements qrcode.OperationLogger.
func (operationLogger *ZapOperationLogger) LogOperation(_ context.Context, entry qrcode.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("shop_domain", entry.ShopDomain.String()),
		zap.String("code_id", entry.CodeID.String()),
		zap.Int64("balance", entry.Balance.Int64()),
		zap.String("status", entry.Status),
	}
	if entry.Error != nil {
		operationLogger.logger.Error("code operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	operationLogger.logger.Info("code operation", fields...)
}
