// Package validation validates protocol messages and configuration structs
// with go-playground/validator struct tags. Failures are returned as
// VALIDATION_ERROR AppErrors whose details list the offending fields.
//
//	type UploadRequest struct {
//	    Filename string `json:"filename" validate:"required,max=255,safe_filename"`
//	}
//	err := validation.Validate(req)
package validation
