package errs

import "errors"

// Sentinels for the failure kinds the retrieval core distinguishes. Callers
// wrap them with context and the access layer maps them to errcode values.
var (
	ErrInvalid      = errors.New("invalid")
	ErrNotFound     = errors.New("not found")
	ErrIndexMissing = errors.New("index not built")
	ErrEmptyCorpus  = errors.New("no chunks in corpus")
	ErrConfig       = errors.New("bad configuration")
	ErrUnauthorized = errors.New("unauthorized")
)
