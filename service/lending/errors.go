package lending

import "errors"

// errors used by the API layer

type ErrCode string

const (
	// not found
	ErrReaderNotFound  ErrCode = "READER_NOT_FOUND"
	ErrTitleNotFound   ErrCode = "TITLE_NOT_FOUND"
	ErrRequestNotFound ErrCode = "REQUEST_NOT_FOUND"
	ErrItemNotFound    ErrCode = "ITEM_NOT_FOUND"

	// conflict
	ErrNoCopyAvailable  ErrCode = "NO_COPY_AVAILABLE"
	ErrCopyTaken        ErrCode = "COPY_TAKEN"
	ErrNotPending       ErrCode = "NOT_PENDING"
	ErrNotReturnable    ErrCode = "NOT_RETURNABLE"
	ErrNotPendingReturn ErrCode = "NOT_PENDING_RETURN"

	// forbidden
	ErrCardNotActive   ErrCode = "CARD_NOT_ACTIVE"
	ErrRareRequiresVIP ErrCode = "RARE_REQUIRES_VIP"
	ErrLimitReached    ErrCode = "BORROW_LIMIT_REACHED"
	ErrNotOwner        ErrCode = "NOT_OWNER"

	// invalid input
	ErrInvalidInput ErrCode = "INVALID_INPUT"
)

type codedError struct {
	code   ErrCode
	detail string
}

func (e codedError) Error() string {
	if e.detail == "" {
		return string(e.code)
	}
	return string(e.code) + ": " + e.detail
}
func (e codedError) Code() ErrCode  { return e.code }
func (e codedError) Detail() string { return e.detail }

func makeErr(c ErrCode, detail string) error { return codedError{code: c, detail: detail} }

// Code extracts the error code.
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}
