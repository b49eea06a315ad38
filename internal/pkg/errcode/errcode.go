package errcode

const (
	ErrUnknown = 20000000 + iota
	ErrUnauthorized
	ErrNotFound
	ErrInvalid
	ErrTooMany
	ErrInternal
	ErrIndexMissing
	ErrEmptyCorpus
	ErrBadConfig
	ErrProvider
)
