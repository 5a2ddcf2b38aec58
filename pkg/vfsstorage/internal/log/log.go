package storagelog

import (
	"go.uber.org/zap"
)

// headMsg is a distinctive part of all messages.
const headMsg = "vfs storage operation"

// Write writes message about storage operation to logger.
func Write(logger *zap.Logger, fields ...zap.Field) {
	logger.Debug(headMsg, fields...)
}

// FileField returns logger's field for file record identifier.
func FileField(id int32) zap.Field {
	return zap.Int32("file", id)
}

// AttributeField returns logger's field for attribute identifier.
func AttributeField(id int32) zap.Field {
	return zap.Int32("attribute", id)
}

// RecordField returns logger's field for blob record identifier.
func RecordField(id int32) zap.Field {
	return zap.Int32("record", id)
}

// OpField returns logger's field for operation type.
func OpField(op string) zap.Field {
	return zap.String("op", op)
}
