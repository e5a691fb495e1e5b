package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotEligible  = errors.New("refund is not eligible for resubmission")
	ErrInvalidStay  = errors.New("check_out must not be before check_in")
)
