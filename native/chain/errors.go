package chain

import (
	"errors"

	"trustescrow/native/common"
)

var (
	errNilState = errors.New("chain engine: state not configured")

	ErrInvalidDependency = common.NewError(common.KindValidation, "InvalidDependency", "chain: unknown dependency type")
	ErrInvalidThreshold  = common.NewError(common.KindValidation, "InvalidThreshold", "chain: partial threshold must be within 1..10000 bps")
	ErrUnknownEscrow     = common.NewError(common.KindNotFound, "UnknownEscrow", "chain: unknown escrow")
	ErrNotLinked         = common.NewError(common.KindNotFound, "NotLinked", "chain: escrow is not part of a chain")
	ErrAlreadyLinked     = common.NewError(common.KindStateConflict, "AlreadyLinked", "chain: edge already exists")
	ErrMilestoneSet      = common.NewError(common.KindStateConflict, "MilestoneAlreadySet", "chain: milestone already reached")
	ErrUnauthorized      = common.NewError(common.KindAuthorization, "Unauthorized", "chain: caller not authorized")
	ErrCycleDetected     = common.NewError(common.KindDependency, "CycleDetected", "chain: link would create a cycle")
	ErrChainTooDeep      = common.NewError(common.KindDependency, "ChainTooDeep", "chain: maximum depth exceeded")
)
