package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chat-gateway/internal/pagination"
	"chat-gateway/internal/repositories"
)

// ActionError is a failure reported to the originating connection.
type ActionError struct {
	Status   int
	Messages []string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, strings.Join(e.Messages, "; "))
}

func badRequest(format string, args ...any) *ActionError {
	return &ActionError{Status: http.StatusBadRequest, Messages: []string{fmt.Sprintf(format, args...)}}
}

func forbidden() *ActionError {
	return &ActionError{Status: http.StatusForbidden, Messages: []string{"You do not have permission to perform this action."}}
}

func notFound(format string, args ...any) *ActionError {
	return &ActionError{Status: http.StatusNotFound, Messages: []string{fmt.Sprintf(format, args...)}}
}

func tooManyRequests() *ActionError {
	return &ActionError{Status: http.StatusTooManyRequests, Messages: []string{"Request was throttled."}}
}

func serverError() *ActionError {
	return &ActionError{Status: http.StatusInternalServerError, Messages: []string{"Internal server error."}}
}

// toActionError maps store and pagination errors onto protocol statuses.
// The second result is false for unexpected errors that should be logged.
func toActionError(err error) (*ActionError, bool) {
	var (
		ae      *ActionError
		page    *pagination.InvalidPageError
		missing *repositories.MissingError
	)
	switch {
	case errors.As(err, &ae):
		return ae, true
	case errors.As(err, &page):
		return badRequest("%s", page.Reason), true
	case errors.As(err, &missing):
		return notFound("%s with ids %v not found!", capitalize(missing.Kind), missing.IDs), true
	case errors.Is(err, repositories.ErrRoomNotFound):
		return notFound("Room not found!"), true
	case errors.Is(err, repositories.ErrMessageNotFound):
		return notFound("Message not found!"), true
	case errors.Is(err, repositories.ErrFavoriteExists):
		return badRequest("You have already added this room to favorites!"), true
	case errors.Is(err, repositories.ErrFavoriteNotFound):
		return notFound("Favorite not found!"), true
	}
	return serverError(), false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
