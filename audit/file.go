package audit

import (
	"context"

	"backoffice-svc/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSink writes one JSON line per entry to a size-rotated file.
type FileSink struct {
	logger *zap.Logger
	writer *lumberjack.Logger
}

func NewFileSink(path string) *FileSink {
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     90,
		Compress:   true,
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "logged_at"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), zapcore.InfoLevel)
	return &FileSink{logger: zap.New(core), writer: w}
}

func (s *FileSink) Append(_ context.Context, entries ...models.AuditLogEntry) error {
	for _, e := range entries {
		fields := []zap.Field{
			zap.String("id", e.ID),
			zap.String("actor_id", e.ActorID),
			zap.String("action", e.Action),
			zap.String("resource_type", string(e.ResourceType)),
			zap.String("severity", string(e.Severity)),
			zap.Time("timestamp", e.Timestamp),
			zap.Any("changes", e.Changes),
		}
		if e.ResourceID != nil {
			fields = append(fields, zap.String("resource_id", *e.ResourceID))
		}
		if len(e.Metadata) > 0 {
			fields = append(fields, zap.Any("metadata", e.Metadata))
		}
		s.logger.Info("audit", fields...)
	}
	return s.logger.Sync()
}

func (s *FileSink) Close() error {
	_ = s.logger.Sync()
	return s.writer.Close()
}
