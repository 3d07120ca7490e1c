package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, automation.ErrInstanceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrInstanceNotFound is returned by Find for an unknown instance name.
	ErrInstanceNotFound = errors.New("automation: instance not found")

	// ErrInvalidDocument is returned when a node document cannot be parsed.
	ErrInvalidDocument = errors.New("automation: invalid document")

	// ErrDocumentNotFound is returned when no document is stored under an ID.
	ErrDocumentNotFound = errors.New("automation: document not found")

	// ErrInvalidTime is returned for a schedule key that is neither HH:MM nor a known keyword.
	ErrInvalidTime = errors.New("automation: invalid schedule time")

	// ErrInvalidKeyword is returned for an empty keyword name or one that shadows HH:MM.
	ErrInvalidKeyword = errors.New("automation: invalid keyword")

	// ErrKeywordNotFound is returned when removing an unknown keyword.
	ErrKeywordNotFound = errors.New("automation: keyword not found")

	// ErrReservedKeyword is returned when editing a keyword resolved from the sun.
	ErrReservedKeyword = errors.New("automation: keyword is computed")

	// ErrScheduleRuleNotFound is returned when removing a time the schedule does not hold.
	ErrScheduleRuleNotFound = errors.New("automation: schedule rule not found")

	// ErrNoDocumentStore is returned by SaveSchedules when no store is configured.
	ErrNoDocumentStore = errors.New("automation: no document store")
)
