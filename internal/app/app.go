// Package app is the core application service: account lifecycle, document
// training, question answering and the persisted query log.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"docuchat/internal/index"
	"docuchat/internal/ingest"
	"docuchat/internal/session"
	"docuchat/pkg/ai"
	"docuchat/pkg/auth"
	"docuchat/pkg/domain"
	"docuchat/pkg/storage"
	"docuchat/pkg/store"
)

const (
	defaultTopK        = 4
	snippetMaxLen      = 240
	answerSystemPrompt = "You are a helpful assistant that answers questions using only the provided document excerpts. " +
		"If the excerpts do not contain the answer, say you do not know."
)

// Config holds the dependencies and tunables for the core application.
type Config struct {
	Store     store.Store
	Sessions  store.SessionStore
	Embedder  ai.Embedder
	Generator ai.TextGenerator
	Archive   storage.ObjectStore // optional; uploads are archived best-effort
	TopK      int
	Logger    *slog.Logger
}

// App wires storage, session state and the AI providers together.
type App struct {
	store     store.Store
	sessions  store.SessionStore
	registry  *session.Registry
	embedder  ai.Embedder
	generator ai.TextGenerator
	archive   storage.ObjectStore
	topK      int
	log       *slog.Logger
}

// New constructs the application service.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Embedder == nil || cfg.Generator == nil {
		return nil, fmt.Errorf("embedder and generator are required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		store:     cfg.Store,
		sessions:  cfg.Sessions,
		registry:  session.NewRegistry(),
		embedder:  cfg.Embedder,
		generator: cfg.Generator,
		archive:   cfg.Archive,
		topK:      cfg.TopK,
		log:       logger,
	}, nil
}

// SignUp registers a new account and issues a session token.
func (a *App) SignUp(username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return domain.User{}, "", ErrUsernameAndPasswordRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	exists, err := a.store.HasUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check username: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrUsernameTaken
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		// A concurrent registration can slip past the check above and hit
		// the unique index instead.
		if errors.Is(err, store.ErrDuplicateUsername) {
			return domain.User{}, "", ErrUsernameTaken
		}
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and issues a session token. Unknown usernames
// and wrong passwords produce the same error.
func (a *App) Login(username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// Logout invalidates the session token and drops the user's in-memory state,
// so the next login starts untrained.
func (a *App) Logout(token, userID string) error {
	if err := a.sessions.DeleteSession(token); err != nil {
		return err
	}
	a.registry.Clear(userID)
	return nil
}

// UserFromToken resolves a user from a session token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// TrainResult reports what a train action produced: which files made it into
// the index and which failed extraction.
type TrainResult struct {
	TrainedFiles  []string           `json:"trainedFiles"`
	DocumentCount int                `json:"documentCount"`
	Failures      []ingest.FileError `json:"failures,omitempty"`
}

// Train extracts the uploaded files, embeds the result and replaces the
// user's index. A file that fails extraction is reported and skipped. When
// every file fails, the previous index is left untouched and the failures are
// returned without an overall error. An embedding failure also leaves the
// previous index in place.
func (a *App) Train(ctx context.Context, userID string, files []ingest.UploadFile) (TrainResult, error) {
	if len(files) == 0 {
		return TrainResult{}, ErrNoFilesUploaded
	}
	docs, trained, failures := ingest.ExtractAll(files)
	result := TrainResult{TrainedFiles: trained, DocumentCount: len(docs), Failures: failures}
	if len(docs) == 0 {
		return result, nil
	}
	idx, err := index.Build(ctx, a.embedder, docs)
	if err != nil {
		return TrainResult{Failures: failures}, fmt.Errorf("%w: %v", ErrEmbeddingService, err)
	}
	_, previous := a.registry.Get(userID)
	a.registry.SetTrained(userID, idx, trained)
	a.archiveUploads(ctx, userID, files, trained)
	a.removeStaleArchives(ctx, userID, previous, trained)
	a.log.Info("session trained",
		"userId", userID,
		"files", len(trained),
		"documents", len(docs),
		"failedFiles", len(failures),
	)
	return result, nil
}

// archiveUploads copies the successfully trained originals to object storage.
// Failures are logged and never affect the train action.
func (a *App) archiveUploads(ctx context.Context, userID string, files []ingest.UploadFile, trained []string) {
	if a.archive == nil {
		return
	}
	ok := make(map[string]bool, len(trained))
	for _, name := range trained {
		ok[name] = true
	}
	for _, file := range files {
		if !ok[file.Filename] {
			continue
		}
		key := userID + "/" + file.Filename
		err := a.archive.Put(ctx, key, bytes.NewReader(file.Data), int64(len(file.Data)), contentTypeFor(file.Filename))
		if err != nil {
			a.log.Warn("archive upload failed", "key", key, "error", err)
		}
	}
}

// removeStaleArchives drops archived originals from the replaced corpus so
// the archive mirrors the current training set. Best-effort like the upload.
func (a *App) removeStaleArchives(ctx context.Context, userID string, previous, trained []string) {
	if a.archive == nil {
		return
	}
	current := make(map[string]bool, len(trained))
	for _, name := range trained {
		current[name] = true
	}
	for _, name := range previous {
		if current[name] {
			continue
		}
		key := userID + "/" + name
		if err := a.archive.Delete(ctx, key); err != nil {
			a.log.Warn("archive cleanup failed", "key", key, "error", err)
		}
	}
}

func contentTypeFor(filename string) string {
	format, err := ingest.DetectFormat(filename)
	if err != nil {
		return "application/octet-stream"
	}
	switch format {
	case ingest.FormatPDF:
		return "application/pdf"
	case ingest.FormatCSV:
		return "text/csv"
	case ingest.FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ingest.FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// Answer is a generated reply plus the passages it was grounded on.
type Answer struct {
	Text    string          `json:"answer"`
	Sources []domain.Source `json:"sources,omitempty"`
}

// Ask retrieves the nearest passages for the question, prompts the generator
// with them and records the exchange on the transcript and the query log.
func (a *App) Ask(ctx context.Context, userID, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrQuestionRequired
	}
	idx, _ := a.registry.Get(userID)
	if idx.Len() == 0 {
		return Answer{}, ErrNotTrained
	}
	results, err := idx.Search(ctx, a.embedder, question, a.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %v", ErrEmbeddingService, err)
	}
	prompt, sources := buildContext(question, results)
	text, err := a.generator.GenerateText(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %v", ErrGenerationService, err)
	}

	record := domain.Query{
		ID:        uuid.NewString(),
		UserID:    userID,
		Question:  question,
		Answer:    text,
		Sources:   sources,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendQuery(record); err != nil {
		return Answer{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	a.registry.AppendExchange(userID, question, text)
	return Answer{Text: text, Sources: sources}, nil
}

// History returns the user's persisted query log, most recent first.
func (a *App) History(userID string) ([]domain.Query, error) {
	queries, err := a.store.ListQueriesByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	return queries, nil
}

// TrainedFiles lists the filenames behind the current session index.
func (a *App) TrainedFiles(userID string) []string {
	_, files := a.registry.Get(userID)
	return files
}

// Transcript returns the in-session chat messages in order.
func (a *App) Transcript(userID string) []domain.Message {
	return a.registry.Transcript(userID)
}

// Trained reports whether the user can ask questions.
func (a *App) Trained(userID string) bool {
	return a.registry.Trained(userID)
}

// buildContext renders the retrieved passages into a numbered prompt block
// and the matching source descriptors for the response.
func buildContext(question string, results []index.Result) (string, []domain.Source) {
	var sb strings.Builder
	sources := make([]domain.Source, 0, len(results))
	sb.WriteString("Context:\n")
	for i, res := range results {
		label := "[" + strconv.Itoa(i+1) + "]"
		sb.WriteString(label)
		sb.WriteString(" ")
		sb.WriteString(res.Document.Content)
		sb.WriteString("\n\n")
		sources = append(sources, domain.Source{
			Label:    label,
			Filename: res.Document.Source,
			Location: res.Document.Location,
			Snippet:  truncateSnippet(res.Document.Content),
		})
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String(), sources
}

func truncateSnippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetMaxLen {
		return text
	}
	return string(runes[:snippetMaxLen]) + "…"
}
