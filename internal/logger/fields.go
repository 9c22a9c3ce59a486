package logger

import (
	"time"

	"go.uber.org/zap"
)

// Standard field constructors so keys stay consistent across packages.

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func FlowID(v string) zap.Field { return zap.String("flow_id", v) }
func Method(v string) zap.Field { return zap.String("method", v) }
func Path(v string) zap.Field { return zap.String("path", v) }
func Status(v int) zap.Field { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }
func UserID(v string) zap.Field { return zap.String("user_id", v) }
func Op(v string) zap.Field { return zap.String("op", v) }
func Component(v string) zap.Field { return zap.String("component", v) }
func Err(err error) zap.Field { return zap.Error(err) }

// Phone logs an already masked phone number.
func Phone(masked string) zap.Field { return zap.String("phone", masked) }
