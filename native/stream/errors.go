package stream

import (
	"errors"

	"trustescrow/native/common"
)

var (
	errNilState = errors.New("stream engine: state not configured")

	ErrInvalidAmount     = common.NewError(common.KindValidation, "InvalidAmount", "stream: budget must be positive")
	ErrInvalidRate       = common.NewError(common.KindValidation, "InvalidRate", "stream: rate must be non-negative")
	ErrInvalidParties    = common.NewError(common.KindValidation, "InvalidParties", "stream: sender and receiver must differ")
	ErrClockRegression   = common.NewError(common.KindValidation, "ClockRegression", "stream: time precedes last observation")
	ErrDuplicateID       = common.NewError(common.KindStateConflict, "DuplicateId", "stream: id already exists")
	ErrUnknownStream     = common.NewError(common.KindNotFound, "UnknownStream", "stream: unknown stream")
	ErrNothingToWithdraw = common.NewError(common.KindStateConflict, "NothingToWithdraw", "stream: nothing to withdraw")
	ErrStreamNotActive   = common.NewError(common.KindStateConflict, "StreamNotActive", "stream: not active")
	ErrUnauthorized      = common.NewError(common.KindAuthorization, "Unauthorized", "stream: caller not authorized")
)
