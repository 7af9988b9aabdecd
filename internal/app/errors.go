package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// This message is intended to be shown to end users and should not enable account enumeration.
	ErrInvalidCredentials = errors.New("Incorrect username or password")

	ErrUsernameAndPasswordRequired = errors.New("username and password required")
	ErrUsernameTaken               = errors.New("username already exists")

	// ErrNotTrained is returned when a question arrives before any successful
	// training in the current session.
	ErrNotTrained = errors.New("please upload and train your documents first")

	ErrNoFilesUploaded  = errors.New("no files uploaded")
	ErrQuestionRequired = errors.New("question required")

	// ErrEmbeddingService and ErrGenerationService mark upstream AI failures so
	// handlers can map them to a bad-gateway response.
	ErrEmbeddingService  = errors.New("embedding service unavailable")
	ErrGenerationService = errors.New("generation service unavailable")

	// ErrStorage marks a durable-store failure on an otherwise valid action.
	ErrStorage = errors.New("failed to save query history")
)
