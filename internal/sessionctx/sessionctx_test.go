package sessionctx_test

import (
	"context"
	"testing"
	"time"

	"github.com/elefante-mem/elefante/internal/sessionctx"
	"github.com/elefante-mem/elefante/pkg/memory"
	"github.com/elefante-mem/elefante/pkg/memory/mock"
)

func TestScore_EmptySessionOrCandidates(t *testing.T) {
	g := mock.NewGraphStore()
	s := sessionctx.New(g)

	got, err := s.Score(context.Background(), "", []memory.Memory{{ID: "m1", Title: "x"}})
	if err != nil || len(got) != 0 {
		t.Fatalf("empty sessionID: got %v, %v", got, err)
	}

	got, err = s.Score(context.Background(), "sess-1", nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty candidates: got %v, %v", got, err)
	}
}

func TestScore_NoMessagesYieldsEmptyMap(t *testing.T) {
	g := mock.NewGraphStore()
	s := sessionctx.New(g)

	got, err := s.Score(context.Background(), "sess-1", []memory.Memory{{ID: "m1", Title: "pgbouncer pooling"}})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no contribution with no message history, got %v", got)
	}
}

func TestScore_RewardsRecentMatchingUserMessage(t *testing.T) {
	g := mock.NewGraphStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := g.AppendMessage(ctx, memory.Message{
		SessionID: "sess-1", Role: memory.RoleUser,
		Text: "tell me about pgbouncer pooling config", Timestamp: now.Add(-5 * time.Minute),
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := g.AppendMessage(ctx, memory.Message{
		SessionID: "sess-1", Role: memory.RoleUser,
		Text: "completely unrelated weather chat", Timestamp: now.Add(-4 * time.Minute),
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	s := sessionctx.New(g)
	candidates := []memory.Memory{
		{ID: "relevant", Title: "pgbouncer pooling config"},
		{ID: "unrelated", Title: "kubernetes deployment strategy"},
	}

	got, err := s.Score(ctx, "sess-1", candidates)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if _, ok := got["unrelated"]; ok {
		t.Errorf("unrelated candidate should contribute 0 (absent), got %v", got["unrelated"])
	}
	if got["relevant"] <= 0 {
		t.Errorf("relevant candidate should score > 0, got %v", got["relevant"])
	}
}

func TestScore_SingleContributingCandidateNormalizesToOne(t *testing.T) {
	g := mock.NewGraphStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := g.AppendMessage(ctx, memory.Message{
		SessionID: "sess-1", Role: memory.RoleUser,
		Text: "deploy pipeline rollback strategy", Timestamp: now.Add(-10 * time.Minute),
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	s := sessionctx.New(g)
	recent, err := s.Score(ctx, "sess-1", []memory.Memory{{ID: "m1", Title: "deploy pipeline rollback strategy"}})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if recent["m1"] != 1.0 {
		t.Errorf("single contributing candidate should normalize to 1.0, got %v", recent["m1"])
	}
}

func TestScore_AssistantMessageWeighsLessThanUser(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	title := "retry backoff configuration"

	gUser := mock.NewGraphStore()
	_ = gUser.AppendMessage(ctx, memory.Message{SessionID: "s", Role: memory.RoleUser, Text: title, Timestamp: now})
	userScore, err := sessionctx.New(gUser).Score(ctx, "s", []memory.Memory{{ID: "m1", Title: title}, {ID: "m2", Title: "zzz"}})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	gAsst := mock.NewGraphStore()
	_ = gAsst.AppendMessage(ctx, memory.Message{SessionID: "s", Role: memory.RoleAssistant, Text: title, Timestamp: now})
	_ = gAsst.AppendMessage(ctx, memory.Message{SessionID: "s", Role: memory.RoleUser, Text: "zzz yyy", Timestamp: now})
	asstScore, err := sessionctx.New(gAsst).Score(ctx, "s", []memory.Memory{{ID: "m1", Title: title}, {ID: "m2", Title: "zzz yyy"}})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	if userScore["m1"] < asstScore["m1"] {
		t.Errorf("user-authored match should score at least as high as assistant-authored: user=%v assistant=%v", userScore["m1"], asstScore["m1"])
	}
}
