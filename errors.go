package jitcore

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is a wire-stable error code from the §6 sentinel space.
type Code uint32

const (
	Ok Code = iota
	NoHeapMemory
	NoVirtualMemory
	InvalidArgument
	InvalidState
	InvalidArch
	NotInitialized
	AlreadyInitialized
	FeatureNotEnabled
	SlotOccupied
	NoCodeGenerated
	CodeTooLarge
	InvalidLabel
	LabelIndexOverflow
	LabelAlreadyBound
	LabelAlreadyDefined
	LabelNameTooLong
	InvalidLabelName
	InvalidParentLabel
	NonLocalLabelCantHaveParent
	RelocIndexOverflow
	InvalidRelocEntry
	InvalidDisplacement
	InvalidAddress
)

var codeNames = map[Code]string{
	Ok:                          "Ok",
	NoHeapMemory:                "NoHeapMemory",
	NoVirtualMemory:             "NoVirtualMemory",
	InvalidArgument:             "InvalidArgument",
	InvalidState:                "InvalidState",
	InvalidArch:                 "InvalidArch",
	NotInitialized:              "NotInitialized",
	AlreadyInitialized:          "AlreadyInitialized",
	FeatureNotEnabled:           "FeatureNotEnabled",
	SlotOccupied:                "SlotOccupied",
	NoCodeGenerated:             "NoCodeGenerated",
	CodeTooLarge:                "CodeTooLarge",
	InvalidLabel:                "InvalidLabel",
	LabelIndexOverflow:          "LabelIndexOverflow",
	LabelAlreadyBound:           "LabelAlreadyBound",
	LabelAlreadyDefined:         "LabelAlreadyDefined",
	LabelNameTooLong:            "LabelNameTooLong",
	InvalidLabelName:            "InvalidLabelName",
	InvalidParentLabel:          "InvalidParentLabel",
	NonLocalLabelCantHaveParent: "NonLocalLabelCantHaveParent",
	RelocIndexOverflow:          "RelocIndexOverflow",
	InvalidRelocEntry:           "InvalidRelocEntry",
	InvalidDisplacement:         "InvalidDisplacement",
	InvalidAddress:              "InvalidAddress",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", uint32(c))
}

// Error carries a wire-stable Code plus an optional wrapped cause.
// Construction goes through pkg/errors so the cause chain supports
// errors.Is/errors.As all the way down to a stdlib or syscall error.
type Error struct {
	Code  Code
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("jitcore: %s: %v", e.Code, e.cause)
	}
	return fmt.Sprintf("jitcore: %s", e.Code)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same Code, so callers
// can do errors.Is(err, jitcore.NewError(LabelAlreadyDefined)).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Code == e.Code
}

// NewError builds a bare *Error for the given code.
func NewError(code Code) *Error {
	return &Error{Code: code}
}

// WrapError attaches cause to code via pkg/errors so the resulting chain
// keeps a stack trace on cause, not just a formatted string.
func WrapError(code Code, cause error, msg string) *Error {
	if cause == nil {
		return NewError(code)
	}
	return &Error{Code: code, cause: errors.Wrap(cause, msg)}
}

// CodeOf extracts the Code from err if it is (or wraps) a *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return Ok, false
}
