// Package errkind — классифицированные ошибки движка.
//
// Всё, что уходит наружу из submitter/trade/runner, несёт Kind, по которому
// вызывающий решает: ретраить, показать пользователю или остановить бота.
package errkind

import (
	"errors"
	"fmt"
)

type Kind string

const (
	Generic               Kind = "generic"
	Validation            Kind = "validation"
	PriceIncrement        Kind = "price_increment_mismatch"
	SizeIncrement         Kind = "size_increment_mismatch"
	InsufficientMargin    Kind = "insufficient_margin"
	InsufficientIncrement Kind = "insufficient_increment"
	UnknownInstrument     Kind = "unknown_instrument"
	StaleNonce            Kind = "stale_nonce"
	RateLimited           Kind = "rate_limited"
	Blocked               Kind = "blocked"
	NeedsDeposit          Kind = "needs_deposit"
	TransientNetwork      Kind = "transient_network"
	FatalAccountState     Kind = "fatal_account_state"
	NoOpenPosition        Kind = "no_open_position"
)

// IncrementMismatch — ошибки, которые лечатся перевыравниванием и повтором.
func (k Kind) IncrementMismatch() bool {
	return k == PriceIncrement || k == SizeIncrement
}

// Retryable — можно ли повторять внутри одного вызова submit.
func (k Kind) Retryable() bool { return k.IncrementMismatch() }

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is позволяет errors.Is(err, errkind.New(kind, "")) сравнивать только по Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Of возвращает Kind ошибки; для неклассифицированных — Generic.
func Of(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Generic
}

func Has(err error, kind Kind) bool {
	return err != nil && Of(err) == kind
}
