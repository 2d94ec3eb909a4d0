package types

import "errors"

// VerdictResult is the classifier's binary determination.
type VerdictResult string

const (
	ResultFraud    VerdictResult = "FRAUD"
	ResultNotFraud VerdictResult = "NOT FRAUD"
)

// ErrorKind classifies adapter failures.
type ErrorKind string

const (
	ErrorKindInputShape      ErrorKind = "input_shape"
	ErrorKindInputParse      ErrorKind = "input_parse"
	ErrorKindModelInvocation ErrorKind = "model_invocation"
)

// ErrorKinds lists every adapter failure kind.
var ErrorKinds = []ErrorKind{ErrorKindInputShape, ErrorKindInputParse, ErrorKindModelInvocation}

var (
	ErrInputShape      = errors.New("input shape")
	ErrInputParse      = errors.New("input parse")
	ErrModelInvocation = errors.New("model invocation")
)

// AdapterError is a typed classification failure.
type AdapterError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *AdapterError) Error() string {
	return e.Message
}

// Is matches the sentinel for the error's kind.
func (e *AdapterError) Is(target error) bool {
	switch e.Kind {
	case ErrorKindInputShape:
		return target == ErrInputShape
	case ErrorKindInputParse:
		return target == ErrInputParse
	case ErrorKindModelInvocation:
		return target == ErrModelInvocation
	}
	return false
}

// Verdict is either a classification result or an adapter error.
type Verdict struct {
	Result VerdictResult `json:"result,omitempty"`
	Err    *AdapterError `json:"error,omitempty"`
}

func FraudVerdict() Verdict {
	return Verdict{Result: ResultFraud}
}

func NotFraudVerdict() Verdict {
	return Verdict{Result: ResultNotFraud}
}

func ErrorVerdict(kind ErrorKind, message string) Verdict {
	return Verdict{Err: &AdapterError{Kind: kind, Message: message}}
}

// Failed reports whether the verdict carries an adapter error.
func (v Verdict) Failed() bool {
	return v.Err != nil
}

// IsFraud reports whether the classifier flagged the transaction.
func (v Verdict) IsFraud() bool {
	return v.Err == nil && v.Result == ResultFraud
}
