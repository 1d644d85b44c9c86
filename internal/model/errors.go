package model

import "strings"

// ValidationError reports malformed or incomplete input. It is never retried
// and surfaces at the ingress as a 400 with the itemized field list.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}
