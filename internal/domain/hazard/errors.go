package hazard

import "errors"

var (
	ErrIdentityRequired              = errors.New("hazard report id is required")
	ErrInvalidIdentity               = errors.New("invalid hazard report id")
	ErrDescriptionRequired           = errors.New("hazard description is required")
	ErrInvalidLocation               = errors.New("invalid hazard location")
	ErrPhotoKeyRequired              = errors.New("photo asset key is required")
	ErrStaffMemberRequired           = errors.New("safety staff member name is required")
	ErrResolutionDescriptionRequired = errors.New("resolution description is required")
	ErrAlreadyResolved               = errors.New("hazard report is already resolved")
	ErrUnknownView                   = errors.New("unknown view")
	ErrInvalidReason                 = errors.New("invalid change reason")
)
