package ports

import "github.com/medlink-labs/medlink/pkg/log"

// Logger is the structured logging port. See pkg/log for implementations.
type Logger = log.Logger

// Field is a structured logging key-value pair.
type Field = log.Field

// Field constructors re-exported so internal packages only import ports.
var (
	String   = log.String
	Int      = log.Int
	Int64    = log.Int64
	Float64  = log.Float64
	Bool     = log.Bool
	Duration = log.Duration
	Time     = log.Time
	Err      = log.Err
	Any      = log.Any
)
