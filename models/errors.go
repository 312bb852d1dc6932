package models

import "errors"

var (
	ErrProjectNotFound       = errors.New("project not found")
	ErrTeamMemberNotFound    = errors.New("team member not found")
	ErrEquipmentLineNotFound = errors.New("equipment line not found")
	ErrQuotationNotFound     = errors.New("quotation not found")
)

var (
	ErrInvalidLocation        = errors.New("invalid location")
	ErrInvalidStateTransition = errors.New("invalid quotation state transition")
	ErrQuotationExpired       = errors.New("quotation has expired")
	ErrValidation             = errors.New("validation error")
	ErrNegativeAmount         = errors.New("monetary amount must not be negative")
)

var (
	// ErrConcurrentUpdate запись пересчёта проиграла гонку, операцию можно повторить.
	ErrConcurrentUpdate = errors.New("concurrent update conflict")
	// ErrRollupUnavailable повторы исчерпаны.
	ErrRollupUnavailable = errors.New("rollup unavailable")
)
