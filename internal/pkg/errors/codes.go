package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008

	// File errors (6000-6999)
	ErrFileInvalidUpload  = 6000
	ErrFileNotFound       = 6001
	ErrFileHasDuplicates  = 6002
	ErrFileStorageFailed  = 6003
	ErrFileContentMissing = 6004
	ErrFileTooLarge       = 6005
	ErrFileBatchTooLarge  = 6006
	ErrFileInvalidQuery   = 6007
	ErrFileStatsFailed    = 6008
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	// Common errors
	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	// File errors
	ErrFileInvalidUpload:  {ErrFileInvalidUpload, http.StatusBadRequest, "Invalid file upload"},
	ErrFileNotFound:       {ErrFileNotFound, http.StatusNotFound, "File not found"},
	ErrFileHasDuplicates:  {ErrFileHasDuplicates, http.StatusConflict, "File is referenced by duplicate records"},
	ErrFileStorageFailed:  {ErrFileStorageFailed, http.StatusInternalServerError, "Storage operation failed"},
	ErrFileContentMissing: {ErrFileContentMissing, http.StatusNotFound, "File content is missing from storage"},
	ErrFileTooLarge:       {ErrFileTooLarge, http.StatusRequestEntityTooLarge, "File size exceeds limit"},
	ErrFileBatchTooLarge:  {ErrFileBatchTooLarge, http.StatusBadRequest, "Too many files in batch"},
	ErrFileInvalidQuery:   {ErrFileInvalidQuery, http.StatusBadRequest, "Invalid file query"},
	ErrFileStatsFailed:    {ErrFileStatsFailed, http.StatusInternalServerError, "Storage statistics unavailable"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsClientError checks if the code represents a client error (4xx)
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
