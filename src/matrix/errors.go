package matrix

import "github.com/pkg/errors"

// The error taxonomy returned from Prepare/Confirm/Expire. Callers match
// with errors.Is; everything else coming out of the engine is an internal
// failure. Note there is no "no eligible upline" error -- an exhausted
// referral chain resolves to the treasury by business rule.
var (
	ErrMemberNotFound         = errors.New("member not found")
	ErrAlreadyRegistered      = errors.New("member already registered")
	ErrUnknownReferrer        = errors.New("referrer is not a registered member")
	ErrInvalidLevelTransition = errors.New("levels can only be purchased one at a time, in order")
	ErrIntentAlreadyPending   = errors.New("an open payment intent already exists for this member")
	ErrIntentNotFound         = errors.New("payment intent not found")
	ErrIntentNotPending       = errors.New("payment intent is not pending")
	ErrProofMismatch          = errors.New("payment proof does not match the prepared settlement")
)
