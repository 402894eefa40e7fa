package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/repository"
)

// Error categories. 모든 서비스 에러는 이 중 하나를 감싼다
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("resource not found")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrInvariantViolation = errors.New("invariant violation")
)

// Common service errors
var (
	ErrInvalidInput = fmt.Errorf("%w: invalid input", ErrValidation)
	ErrUnauthorized = fmt.Errorf("%w: unauthorized", ErrValidation)
)

// Matchmaking errors
var (
	ErrMatchmakingTimeout = errors.New("matchmaking timed out")
	ErrTicketNotFound     = fmt.Errorf("%w: ticket not found", ErrNotFound)
	ErrTicketNotWaiting   = fmt.Errorf("%w: ticket is no longer waiting", ErrValidation)
)

// Match errors
var (
	ErrMatchNotFound        = fmt.Errorf("%w: match not found", ErrNotFound)
	ErrMatchFull            = fmt.Errorf("%w: match is full", ErrValidation)
	ErrMatchNotJoinable     = fmt.Errorf("%w: match is not accepting players", ErrValidation)
	ErrMatchNotActive       = fmt.Errorf("%w: match is not active", ErrValidation)
	ErrMatchCompleted       = fmt.Errorf("%w: match is already completed", ErrValidation)
	ErrPlayerNotInMatch     = fmt.Errorf("%w: player is not in this match", ErrValidation)
	ErrQuestionNotCompleted = fmt.Errorf("%w: current question is not completed", ErrValidation)
)

// Answer errors
var (
	ErrQuestionCompleted       = fmt.Errorf("%w: question already completed, advancing", ErrValidation)
	ErrAlreadyAnswered         = fmt.Errorf("%w: already answered this question", ErrValidation)
	ErrInvalidOption           = fmt.Errorf("%w: option index out of range", ErrValidation)
	ErrQuestionIndexOutOfRange = fmt.Errorf("%w: question index out of range", ErrInvariantViolation)
	ErrQuestionNotFound        = fmt.Errorf("%w: question not found", ErrNotFound)
	ErrEmptyQuestionSequence   = fmt.Errorf("%w: match has no questions", ErrInvariantViolation)
)

// IsRetryable 저장소 일시 장애만 재시도 가능
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// storeError 저장소 에러를 서비스 에러로 변환. notFound 는 repository.ErrNotFound 대체 에러
func storeError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case isServiceError(err):
		return err
	case errors.Is(err, repository.ErrNotFound) && notFound != nil:
		return notFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
}

func isServiceError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBackendUnavailable) ||
		errors.Is(err, ErrInvariantViolation) ||
		errors.Is(err, ErrMatchmakingTimeout)
}
