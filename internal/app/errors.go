package app

import "errors"

// Application-level errors
var (
	ErrAdminNotAuthorized      = errors.New("performing user is not authorized as an admin")
	ErrEmptyNPCName            = errors.New("observation has no npc name")
	ErrInvalidResolution       = errors.New("invalid clarification resolution")
	ErrVariantRequired         = errors.New("definition has an instance version; choose instance or open world")
	ErrInvalidRespawnRange     = errors.New("respawn minutes must be non-negative and max must not be below min")
	ErrDefinitionGuildMismatch = errors.New("definition belongs to another guild")
	ErrNoInstanceVersion       = errors.New("definition has no instance version")
	ErrInvalidLeadTime         = errors.New("notify minutes must not be negative")
)
