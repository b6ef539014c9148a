package handler

const (
	errInternalServer     = "Internal server error"
	errDefinitionNotFound = "Schedule not found"
	errDefinitionExists   = "Schedule with this id already exists"
	errInvalidCursor      = "Cursor is invalid"
	errTriggerConflict    = "Use only one of trigger, at, cron"
)
