package session

import (
	"context"
	"testing"

	"docuchat/internal/index"
	"docuchat/pkg/domain"
)

type fixedEmbedder struct{}

func (fixedEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func buildIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, err := index.Build(context.Background(), fixedEmbedder{}, []domain.Document{
		{Content: "hello", Source: "a.pdf"},
	})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return idx
}

func TestRegistryStartsUntrained(t *testing.T) {
	reg := NewRegistry()
	if reg.Trained("u1") {
		t.Fatalf("fresh user should not be trained")
	}
	if idx, files := reg.Get("u1"); idx != nil || files != nil {
		t.Fatalf("fresh user should have no state, got %v %v", idx, files)
	}
}

func TestSetTrainedReplacesPreviousCorpus(t *testing.T) {
	reg := NewRegistry()
	reg.SetTrained("u1", buildIndex(t), []string{"a.pdf", "b.csv"})
	reg.SetTrained("u1", buildIndex(t), []string{"c.docx"})

	_, files := reg.Get("u1")
	if len(files) != 1 || files[0] != "c.docx" {
		t.Fatalf("retrain should replace file list, got %v", files)
	}
	if !reg.Trained("u1") {
		t.Fatalf("user should be trained after SetTrained")
	}
}

func TestTranscriptRecordsExchangesInOrder(t *testing.T) {
	reg := NewRegistry()
	reg.AppendExchange("u1", "first question", "first answer")
	reg.AppendExchange("u1", "second question", "second answer")

	msgs := reg.Transcript("u1")
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[0].Content != "first question" {
		t.Fatalf("unexpected first message: %+v", msgs[0])
	}
	if msgs[3].Role != domain.RoleAssistant || msgs[3].Content != "second answer" {
		t.Fatalf("unexpected last message: %+v", msgs[3])
	}
}

func TestClearDropsAllState(t *testing.T) {
	reg := NewRegistry()
	reg.SetTrained("u1", buildIndex(t), []string{"a.pdf"})
	reg.AppendExchange("u1", "q", "a")
	reg.Clear("u1")

	if reg.Trained("u1") {
		t.Fatalf("cleared user should not be trained")
	}
	if msgs := reg.Transcript("u1"); len(msgs) != 0 {
		t.Fatalf("cleared user should have empty transcript, got %v", msgs)
	}
}

func TestStateIsolatedPerUser(t *testing.T) {
	reg := NewRegistry()
	reg.SetTrained("u1", buildIndex(t), []string{"a.pdf"})
	reg.AppendExchange("u1", "q", "a")

	if reg.Trained("u2") {
		t.Fatalf("u2 should be untrained")
	}
	if msgs := reg.Transcript("u2"); len(msgs) != 0 {
		t.Fatalf("u2 should have empty transcript, got %v", msgs)
	}
	reg.Clear("u2")
	if !reg.Trained("u1") {
		t.Fatalf("clearing u2 must not affect u1")
	}
}
