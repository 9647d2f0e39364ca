package constants

import (
	"github.com/go-playground/validator/v10"
)

type ContextKey string

const (
	PoolKey      ContextKey = "pool"
	TxKey        ContextKey = "tx"
	TenantIDKey  ContextKey = "tenant_id"
	LoggerKey    ContextKey = "logger"
	RequestIDKey ContextKey = "request_id"
)

var Validate = validator.New(validator.WithRequiredStructEnabled())
