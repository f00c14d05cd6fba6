package services

import "errors"

type Code string

const (
	CodeLobbyNotFound           Code = "LOBBY_NOT_FOUND"
	CodePlayerNotFound          Code = "PLAYER_NOT_FOUND"
	CodeLobbyFull               Code = "LOBBY_FULL"
	CodeNotAcceptingPlayers     Code = "NOT_ACCEPTING_PLAYERS"
	CodeAlreadyJoined           Code = "ALREADY_JOINED"
	CodePermissionDenied        Code = "PERMISSION_DENIED"
	CodeGameAlreadyStarted      Code = "GAME_ALREADY_STARTED"
	CodeInsufficientPlayers     Code = "INSUFFICIENT_PLAYERS"
	CodePlayersNotReady         Code = "PLAYERS_NOT_READY"
	CodeInvalidSettings         Code = "INVALID_SETTINGS"
	CodeInvalidLobbyCodeFormat  Code = "INVALID_LOBBY_CODE_FORMAT"
	CodeCodeGenerationExhausted Code = "CODE_GENERATION_EXHAUSTED"
	CodeGameNotStarted          Code = "GAME_NOT_STARTED"
	CodeAnswerRejected          Code = "ANSWER_REJECTED"
	CodeInvalidPlayer           Code = "INVALID_PLAYER"
)

// Error is a lobby operation failure with a machine-readable code.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if reason := e.Metadata["reason"]; reason != "" {
		return e.Message + ": " + reason
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrLobbyNotFound           = newError(CodeLobbyNotFound, "lobby not found")
	ErrPlayerNotFound          = newError(CodePlayerNotFound, "player not found")
	ErrLobbyFull               = newError(CodeLobbyFull, "lobby is full")
	ErrNotAcceptingPlayers     = newError(CodeNotAcceptingPlayers, "lobby is not accepting players")
	ErrAlreadyJoined           = newError(CodeAlreadyJoined, "player already joined")
	ErrPermissionDenied        = newError(CodePermissionDenied, "only the host can do that")
	ErrGameAlreadyStarted      = newError(CodeGameAlreadyStarted, "game already started")
	ErrInsufficientPlayers     = newError(CodeInsufficientPlayers, "not enough players")
	ErrPlayersNotReady         = newError(CodePlayersNotReady, "not all players are ready")
	ErrInvalidSettings         = newError(CodeInvalidSettings, "invalid settings")
	ErrInvalidLobbyCodeFormat  = newError(CodeInvalidLobbyCodeFormat, "invalid lobby code format")
	ErrCodeGenerationExhausted = newError(CodeCodeGenerationExhausted, "could not allocate a lobby code")
	ErrGameNotStarted          = newError(CodeGameNotStarted, "game has not started")
	ErrAnswerRejected          = newError(CodeAnswerRejected, "answer rejected")
	ErrInvalidPlayer           = newError(CodeInvalidPlayer, "invalid player")
)

func invalidSettings(reason string) *Error {
	return &Error{
		Code:     CodeInvalidSettings,
		Message:  ErrInvalidSettings.Message,
		Metadata: map[string]string{"reason": reason},
	}
}

func answerRejected(reason string) *Error {
	return &Error{
		Code:     CodeAnswerRejected,
		Message:  ErrAnswerRejected.Message,
		Metadata: map[string]string{"reason": reason},
	}
}

// CodeOf returns the code carried by err, or "" for infrastructure errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
