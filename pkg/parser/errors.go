package parser

import "errors"

var (
	// ErrUnsupportedFormat is returned when the trace format is not supported.
	ErrUnsupportedFormat = errors.New("parser: unsupported format")

	// ErrModelRequired is returned when an XTR parser is requested without a model.
	ErrModelRequired = errors.New("parser: xtr traces require a model")
)
