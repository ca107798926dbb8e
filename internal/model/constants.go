package model

import "time"

const DefaultTimeout = 10 * time.Second

const DefaultPageSize = 50

const HeaderContentType = "Content-Type"

type ContextKey string

const (
	KeyContextLogger     ContextKey = "logger"
	KeyContextOperatorID ContextKey = "operator_id"
)

const KeyLoggerError = "error"
