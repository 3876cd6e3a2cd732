package database

import "errors"

// Custom errors returned by the Postgres repositories.
var (
	ErrDefinitionNotFound        = errors.New("npc definition not found")
	ErrDuplicateDefinition       = errors.New("npc definition with this name already exists in this zone")
	ErrKillRecordNotFound        = errors.New("npc kill record not found")
	ErrClarificationNotFound     = errors.New("npc kill clarification not found")
	ErrSubscriptionNotFound      = errors.New("respawn subscription not found")
	ErrNotificationStateNotFound = errors.New("respawn notification state not found")
)
