package escrow

import (
	"errors"

	"trustescrow/native/common"
)

var (
	errNilState = errors.New("escrow engine: state not configured")

	ErrInvalidAmount      = common.NewError(common.KindValidation, "InvalidAmount", "escrow: amount must be positive")
	ErrInvalidDeadline    = common.NewError(common.KindValidation, "InvalidDeadline", "escrow: deadline must be in the future")
	ErrInvalidParties     = common.NewError(common.KindValidation, "InvalidParties", "escrow: payer and payee must differ")
	ErrInvalidRatio       = common.NewError(common.KindValidation, "InvalidRatio", "escrow: ratio must be within 0..100")
	ErrDuplicateID        = common.NewError(common.KindStateConflict, "DuplicateId", "escrow: id already exists")
	ErrEscrowNotFound     = common.NewError(common.KindNotFound, "UnknownEscrow", "escrow: unknown escrow")
	ErrNotFunded          = common.NewError(common.KindStateConflict, "NotFunded", "escrow: not in funded state")
	ErrNotDisputed        = common.NewError(common.KindStateConflict, "NotDisputed", "escrow: not in disputed state")
	ErrUnauthorized       = common.NewError(common.KindAuthorization, "Unauthorized", "escrow: caller not authorized")
	ErrDeadlineNotReached = common.NewError(common.KindAuthorization, "DeadlineNotReached", "escrow: deadline not reached")
	ErrParentNotComplete  = common.NewError(common.KindDependency, "ParentNotComplete", "escrow: parent escrow not complete")
	ErrDelegateExists     = common.NewError(common.KindStateConflict, "DelegateExists", "escrow: delegate already registered")
	ErrDelegateNotFound   = common.NewError(common.KindNotFound, "DelegateNotFound", "escrow: delegate not registered")
	ErrTooManyDelegates   = common.NewError(common.KindValidation, "TooManyDelegates", "escrow: delegate limit reached")
)
