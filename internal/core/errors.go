package core

import "errors"

var (
	// ErrValidation covers malformed submissions: missing or mixed payload
	// modes, copies below 1, negative priority, unrenderable templates, and
	// retry attempts against permanent or finalized failures.
	ErrValidation = errors.New("validation failed")

	// ErrPrinterNotFound is returned when an explicit printer reference does
	// not resolve to an existing, active printer.
	ErrPrinterNotFound = errors.New("printer not found")

	// ErrNoPrinterAvailable is returned when automatic selection produced no
	// candidate. Distinct from an assigned-but-offline printer, which queues.
	ErrNoPrinterAvailable = errors.New("no printer available")

	// ErrStateConflict signals a lost state-transition race. Callers should
	// re-fetch the job and re-evaluate rather than treat this as fatal.
	ErrStateConflict = errors.New("job state conflict")

	// ErrInvalidBatch rejects a label batch spanning printers, capability
	// types, or data formats. Nothing is mutated.
	ErrInvalidBatch = errors.New("invalid batch")

	ErrJobNotFound     = errors.New("job not found")
	ErrTemplateMissing = errors.New("template not found")
	ErrPrinterOffline  = errors.New("printer is offline")
)
