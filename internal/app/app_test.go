package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"docuchat/internal/ingest"
	"docuchat/pkg/domain"
	"docuchat/pkg/store"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	// Deterministic toy embedding: counts of a few marker words.
	vec := make([]float32, 3)
	lower := strings.ToLower(text)
	vec[0] = float32(strings.Count(lower, "capital"))
	vec[1] = float32(strings.Count(lower, "price"))
	vec[2] = float32(len(lower) % 7)
	return vec, nil
}

type fakeGenerator struct {
	err        error
	answer     string
	lastPrompt string
}

func (f *fakeGenerator) GenerateText(_ context.Context, _, userPrompt string) (string, error) {
	f.lastPrompt = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func newTestApp(t *testing.T) (*App, *fakeEmbedder, *fakeGenerator) {
	t.Helper()
	embedder := &fakeEmbedder{}
	generator := &fakeGenerator{answer: "the answer"}
	a, err := New(Config{
		Store:     store.NewMemoryStore(),
		Sessions:  store.NewMemorySessionStore(),
		Embedder:  embedder,
		Generator: generator,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, embedder, generator
}

func signUp(t *testing.T, a *App, username string) (string, string) {
	t.Helper()
	user, token, err := a.SignUp(username, "sekret123")
	if err != nil {
		t.Fatalf("sign up %s: %v", username, err)
	}
	return user.ID, token
}

func csvUpload(name string) ingest.UploadFile {
	return ingest.UploadFile{Filename: name, Data: []byte("topic,fact\ncapital,Paris is the capital of France\n")}
}

// failingQueryStore lets tests make the query log fail on demand.
type failingQueryStore struct {
	*store.MemoryStore
	appendErr error
}

func (f *failingQueryStore) AppendQuery(q domain.Query) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	return f.MemoryStore.AppendQuery(q)
}

// racingStore simulates a concurrent registration that slips past the
// username check and hits the unique index instead.
type racingStore struct {
	*store.MemoryStore
}

func (racingStore) HasUsername(string) (bool, error) { return false, nil }

// fakeArchive records archive puts and deletes.
type fakeArchive struct {
	puts    []string
	deletes []string
}

func (f *fakeArchive) Put(_ context.Context, key string, _ io.Reader, _ int64, _ string) error {
	f.puts = append(f.puts, key)
	return nil
}

func (f *fakeArchive) Delete(_ context.Context, key string) error {
	f.deletes = append(f.deletes, key)
	return nil
}

func TestSignUpRejectsDuplicateUsername(t *testing.T) {
	a, _, _ := newTestApp(t)
	signUp(t, a, "alice")
	if _, _, err := a.SignUp("alice", "sekret123"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	// Usernames are matched case-insensitively.
	if _, _, err := a.SignUp("Alice", "sekret123"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken for case variant, got %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	a, _, _ := newTestApp(t)
	signUp(t, a, "alice")

	_, _, wrongPassword := a.Login("alice", "not-the-password")
	_, _, unknownUser := a.Login("nobody", "sekret123")
	if !errors.Is(wrongPassword, ErrInvalidCredentials) || !errors.Is(unknownUser, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", wrongPassword, unknownUser)
	}
	if wrongPassword.Error() != unknownUser.Error() {
		t.Fatalf("error messages differ: %q vs %q", wrongPassword, unknownUser)
	}
}

func TestAskBeforeTrainingReturnsNotice(t *testing.T) {
	a, _, _ := newTestApp(t)
	userID, _ := signUp(t, a, "alice")
	if _, err := a.Ask(context.Background(), userID, "what is the capital?"); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
}

func TestTrainThenAskRecordsHistoryAndTranscript(t *testing.T) {
	a, _, gen := newTestApp(t)
	userID, _ := signUp(t, a, "alice")

	result, err := a.Train(context.Background(), userID, []ingest.UploadFile{csvUpload("facts.csv")})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if len(result.TrainedFiles) != 1 || result.TrainedFiles[0] != "facts.csv" {
		t.Fatalf("unexpected trained files: %v", result.TrainedFiles)
	}

	answer, err := a.Ask(context.Background(), userID, "what is the capital of France?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if answer.Text != "the answer" {
		t.Fatalf("unexpected answer: %q", answer.Text)
	}
	if len(answer.Sources) == 0 || answer.Sources[0].Filename != "facts.csv" {
		t.Fatalf("answer missing sources: %+v", answer.Sources)
	}
	if !strings.Contains(gen.lastPrompt, "[1]") || !strings.Contains(gen.lastPrompt, "what is the capital of France?") {
		t.Fatalf("prompt missing context labels or question: %q", gen.lastPrompt)
	}

	history, err := a.History(userID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Question != "what is the capital of France?" {
		t.Fatalf("unexpected history: %+v", history)
	}
	if msgs := a.Transcript(userID); len(msgs) != 2 {
		t.Fatalf("expected 2 transcript messages, got %d", len(msgs))
	}
}

func TestTrainWithAllFilesFailingLeavesPriorIndex(t *testing.T) {
	a, _, _ := newTestApp(t)
	userID, _ := signUp(t, a, "alice")
	if _, err := a.Train(context.Background(), userID, []ingest.UploadFile{csvUpload("facts.csv")}); err != nil {
		t.Fatalf("first train: %v", err)
	}

	result, err := a.Train(context.Background(), userID, []ingest.UploadFile{
		{Filename: "bad.csv", Data: []byte("header-only\n")},
		{Filename: "bad.xlsx", Data: []byte("not a workbook")},
	})
	if err != nil {
		t.Fatalf("train with failing files should not error overall: %v", err)
	}
	if len(result.Failures) != 2 || result.DocumentCount != 0 {
		t.Fatalf("expected two per-file failures and no documents, got %+v", result)
	}
	if !a.Trained(userID) {
		t.Fatalf("prior index should survive a fully failed batch")
	}
	if files := a.TrainedFiles(userID); len(files) != 1 || files[0] != "facts.csv" {
		t.Fatalf("prior trained files should survive, got %v", files)
	}
}

func TestTrainEmbeddingFailureLeavesPriorIndex(t *testing.T) {
	a, embedder, _ := newTestApp(t)
	userID, _ := signUp(t, a, "alice")
	if _, err := a.Train(context.Background(), userID, []ingest.UploadFile{csvUpload("facts.csv")}); err != nil {
		t.Fatalf("first train: %v", err)
	}

	embedder.err = errors.New("upstream down")
	_, err := a.Train(context.Background(), userID, []ingest.UploadFile{csvUpload("more.csv")})
	if !errors.Is(err, ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
	embedder.err = nil
	if files := a.TrainedFiles(userID); len(files) != 1 || files[0] != "facts.csv" {
		t.Fatalf("embedding failure must not replace the index, got %v", files)
	}
}

func TestRetrainReplacesCorpus(t *testing.T) {
	a, _, _ := newTestApp(t)
	userID, _ := signUp(t, a, "alice")
	if _, err := a.Train(context.Background(), userID, []ingest.UploadFile{csvUpload("old.csv")}); err != nil {
		t.Fatalf("first train: %v", err)
	}
	if _, err := a.Train(context.Background(), userID, []ingest.UploadFile{csvUpload("new.csv")}); err != nil {
		t.Fatalf("second train: %v", err)
	}
	if files := a.TrainedFiles(userID); len(files) != 1 || files[0] != "new.csv" {
		t.Fatalf("retrain should replace the corpus, got %v", files)
	}

	answer, err := a.Ask(context.Background(), userID, "what is the capital?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	for _, src := range answer.Sources {
		if src.Filename == "old.csv" {
			t.Fatalf("retrieval must not serve documents from the replaced corpus: %+v", answer.Sources)
		}
	}
}

func TestSignUpMapsDuplicateKeyFromStore(t *testing.T) {
	a, err := New(Config{
		Store:     racingStore{MemoryStore: store.NewMemoryStore()},
		Sessions:  store.NewMemorySessionStore(),
		Embedder:  &fakeEmbedder{},
		Generator: &fakeGenerator{answer: "the answer"},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, _, err := a.SignUp("alice", "sekret123"); err != nil {
		t.Fatalf("first sign up: %v", err)
	}
	if _, _, err := a.SignUp("alice", "sekret123"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("unique-index violation should surface as ErrUsernameTaken, got %v", err)
	}
}

func TestAskStorageFailureIsSurfaced(t *testing.T) {
	st := &failingQueryStore{MemoryStore: store.NewMemoryStore()}
	a, err := New(Config{
		Store:     st,
		Sessions:  store.NewMemorySessionStore(),
		Embedder:  &fakeEmbedder{},
		Generator: &fakeGenerator{answer: "the answer"},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	userID, _ := signUp(t, a, "alice")
	if _, err := a.Train(context.Background(), userID, []ingest.UploadFile{csvUpload("facts.csv")}); err != nil {
		t.Fatalf("train: %v", err)
	}

	st.appendErr = errors.New("db down")
	if _, err := a.Ask(context.Background(), userID, "anything?"); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage when the query log fails, got %v", err)
	}
	if msgs := a.Transcript(userID); len(msgs) != 0 {
		t.Fatalf("unpersisted ask must not reach the transcript, got %v", msgs)
	}

	st.appendErr = nil
	history, err := a.History(userID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("failed append must not leave a record, got %+v", history)
	}
}

func TestRetrainCleansUpStaleArchives(t *testing.T) {
	archive := &fakeArchive{}
	a, err := New(Config{
		Store:     store.NewMemoryStore(),
		Sessions:  store.NewMemorySessionStore(),
		Embedder:  &fakeEmbedder{},
		Generator: &fakeGenerator{answer: "the answer"},
		Archive:   archive,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	userID, _ := signUp(t, a, "alice")
	if _, err := a.Train(context.Background(), userID, []ingest.UploadFile{csvUpload("old.csv")}); err != nil {
		t.Fatalf("first train: %v", err)
	}
	if _, err := a.Train(context.Background(), userID, []ingest.UploadFile{csvUpload("new.csv")}); err != nil {
		t.Fatalf("second train: %v", err)
	}
	if len(archive.puts) != 2 {
		t.Fatalf("expected both originals archived, got %v", archive.puts)
	}
	want := userID + "/old.csv"
	if len(archive.deletes) != 1 || archive.deletes[0] != want {
		t.Fatalf("expected stale archive %q removed, got %v", want, archive.deletes)
	}
}

func TestAskGenerationFailureIsSurfacedAndNotLogged(t *testing.T) {
	a, _, gen := newTestApp(t)
	userID, _ := signUp(t, a, "alice")
	if _, err := a.Train(context.Background(), userID, []ingest.UploadFile{csvUpload("facts.csv")}); err != nil {
		t.Fatalf("train: %v", err)
	}

	gen.err = errors.New("model overloaded")
	if _, err := a.Ask(context.Background(), userID, "anything?"); !errors.Is(err, ErrGenerationService) {
		t.Fatalf("expected ErrGenerationService, got %v", err)
	}
	history, err := a.History(userID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("failed ask must not be persisted, got %+v", history)
	}
	if msgs := a.Transcript(userID); len(msgs) != 0 {
		t.Fatalf("failed ask must not reach the transcript, got %v", msgs)
	}
}

func TestLogoutClearsSessionState(t *testing.T) {
	a, _, _ := newTestApp(t)
	userID, token := signUp(t, a, "alice")
	if _, err := a.Train(context.Background(), userID, []ingest.UploadFile{csvUpload("facts.csv")}); err != nil {
		t.Fatalf("train: %v", err)
	}
	if err := a.Logout(token, userID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := a.UserFromToken(token); ok {
		t.Fatalf("token should be invalid after logout")
	}
	if a.Trained(userID) {
		t.Fatalf("session state should be cleared on logout")
	}
	if _, err := a.Ask(context.Background(), userID, "still there?"); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained after logout, got %v", err)
	}
}

func TestHistorySurvivesLogout(t *testing.T) {
	a, _, _ := newTestApp(t)
	userID, token := signUp(t, a, "alice")
	if _, err := a.Train(context.Background(), userID, []ingest.UploadFile{csvUpload("facts.csv")}); err != nil {
		t.Fatalf("train: %v", err)
	}
	if _, err := a.Ask(context.Background(), userID, "q1?"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if err := a.Logout(token, userID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	history, err := a.History(userID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("persisted history must survive logout, got %d entries", len(history))
	}
}

func TestHistoryIsolatedPerUser(t *testing.T) {
	a, _, _ := newTestApp(t)
	aliceID, _ := signUp(t, a, "alice")
	bobID, _ := signUp(t, a, "bob")

	if _, err := a.Train(context.Background(), aliceID, []ingest.UploadFile{csvUpload("facts.csv")}); err != nil {
		t.Fatalf("train: %v", err)
	}
	if _, err := a.Ask(context.Background(), aliceID, "alice asks?"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	bobHistory, err := a.History(bobID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(bobHistory) != 0 {
		t.Fatalf("bob must not see alice's history, got %+v", bobHistory)
	}
	if a.Trained(bobID) {
		t.Fatalf("bob must not inherit alice's index")
	}
}
