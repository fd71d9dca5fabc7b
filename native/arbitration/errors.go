package arbitration

import (
	"errors"

	"trustescrow/native/common"
)

var (
	errNilState = errors.New("arbitration engine: state not configured")

	ErrInvalidVerdict    = common.NewError(common.KindExternalInput, "InvalidVerdict", "arbitration: malformed verdict")
	ErrInvalidVote       = common.NewError(common.KindValidation, "InvalidVote", "arbitration: vote must be release, refund or split")
	ErrInvalidEvidence   = common.NewError(common.KindValidation, "InvalidEvidence", "arbitration: evidence digest required")
	ErrTooMuchEvidence   = common.NewError(common.KindValidation, "TooMuchEvidence", "arbitration: evidence limit reached")
	ErrInvalidTransition = common.NewError(common.KindStateConflict, "InvalidTransition", "arbitration: operation invalid for case status")
	ErrCaseExists        = common.NewError(common.KindStateConflict, "CaseExists", "arbitration: case already open")
	ErrUnknownDispute    = common.NewError(common.KindNotFound, "UnknownDispute", "arbitration: unknown dispute")
	ErrQuorumNotReached  = common.NewError(common.KindStateConflict, "QuorumNotReached", "arbitration: quorum not reached")
	ErrUnauthorized      = common.NewError(common.KindAuthorization, "Unauthorized", "arbitration: caller is not a party")
)
