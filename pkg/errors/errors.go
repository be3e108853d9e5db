package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents non-timeout network failures
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout represents request timeouts, the only transient class
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeParsing represents page layout mismatches
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeUpstreamStatus represents a non-"ok" status reported by an upstream API
	ErrorTypeUpstreamStatus ErrorType = "upstream_status"
	// ErrorTypePersistence represents storage write failures
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// CrawlerError represents a crawler-specific error
type CrawlerError struct {
	Type     ErrorType
	Provider string
	Message  string
	Err      error
	Time     time.Time
}

// Error implements the error interface
func (e *CrawlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Provider, e.Message)
}

// Unwrap returns the underlying error
func (e *CrawlerError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable.
// Only timeouts are retried; everything else is either fatal or degraded by the caller.
func (e *CrawlerError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// New creates a new CrawlerError
func New(errType ErrorType, provider, message string, err error) *CrawlerError {
	return &CrawlerError{
		Type:     errType,
		Provider: provider,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeNetwork, provider, message, err)
}

// NewTimeout creates a new timeout error
func NewTimeout(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeTimeout, provider, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeParsing, provider, message, err)
}

// NewUpstreamStatus creates a new upstream status error
func NewUpstreamStatus(provider, status string) *CrawlerError {
	return New(ErrorTypeUpstreamStatus, provider, fmt.Sprintf("upstream status %q", status), nil)
}

// NewPersistence creates a new persistence error
func NewPersistence(provider, message string, err error) *CrawlerError {
	return New(ErrorTypePersistence, provider, message, err)
}

// NewCache creates a new cache error
func NewCache(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeCache, provider, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(provider, message string, err error) *CrawlerError {
	return New(ErrorTypePublisher, provider, message, err)
}

// NewValidation creates a new validation error
func NewValidation(provider, message string) *CrawlerError {
	return New(ErrorTypeValidation, provider, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CrawlerError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// IsType reports whether any CrawlerError in err's chain has the given type
func IsType(err error, errType ErrorType) bool {
	var ce *CrawlerError
	for err != nil {
		if !stderrors.As(err, &ce) {
			return false
		}
		if ce.Type == errType {
			return true
		}
		err = ce.Err
	}
	return false
}

// IsRetryable reports whether err carries a retryable CrawlerError
func IsRetryable(err error) bool {
	return IsType(err, ErrorTypeTimeout)
}

// IsTimeout reports whether err is a timeout
func IsTimeout(err error) bool {
	return IsType(err, ErrorTypeTimeout)
}

// IsParsing reports whether err is a page layout mismatch
func IsParsing(err error) bool {
	return IsType(err, ErrorTypeParsing)
}
