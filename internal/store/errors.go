package store

// Kind classifies persistence errors.
type Kind int

const (
	// KindUnknown is the zero value so an uninitialized Error never
	// matches a sentinel.
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindConflict
)

// Error is a persistence error. Implementations return the sentinels
// below directly; WithMessage derives a copy carrying call context.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches errors of the same kind, so errors.Is(err, ErrNotFound)
// works on derived errors too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// WithMessage returns a copy of the error with a more specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Kind: e.Kind, Message: msg}
}

// Sentinels returned by Store implementations.
var (
	ErrNotFound      = &Error{Kind: KindNotFound, Message: "not found"}
	ErrAlreadyExists = &Error{Kind: KindAlreadyExists, Message: "already exists"}
	ErrConflict      = &Error{Kind: KindConflict, Message: "conflicting concurrent update"}
)
