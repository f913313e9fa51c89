package app

import (
	"fmt"
	"net/http"
)

// DomainError is the typed failure surface of the service layer. Handlers
// switch on Code/Status instead of sniffing message strings.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func notFound(what string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", what+" not found", nil)
}

func invalid(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION", message, nil)
}

// notArchived rejects archive-only operations (restore, permanent delete)
// aimed at a live card.
func notArchived(message string) *DomainError {
	return domainError(http.StatusConflict, "NOT_ARCHIVED", message, nil)
}

// alreadyArchived rejects archiving a card twice.
func alreadyArchived() *DomainError {
	return domainError(http.StatusConflict, "ALREADY_ARCHIVED", "card is already archived", nil)
}

// noColumnsAvailable is the restore failure when the board has no columns
// left to re-home the card into.
func noColumnsAvailable() *DomainError {
	return domainError(http.StatusConflict, "NO_COLUMNS_AVAILABLE", "board has no columns", nil)
}
