package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"rolechat/internal/ai"
	"rolechat/internal/pkg/logger"
)

func newTestChatService(env *testEnv, completer ai.Completer) *ChatService {
	return NewChatService(env.conversations, env.registry, completer, ContextPolicy{}, logger.Discard())
}

func TestHandleTurnRegisterLoginChatExport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustRegister(t, "a@x.com", "pw1")

	login, err := env.sessionSvc.Login(ctx, "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	completer := &fakeCompleter{reply: "hello"}
	chat := newTestChatService(env, completer)
	reply, err := chat.HandleTurn(ctx, Actor{UserID: login.User.ID, Role: login.Session.Role}, "hi")
	if err != nil {
		t.Fatalf("HandleTurn error: %v", err)
	}
	if reply != "hello" {
		t.Fatalf("unexpected reply %q", reply)
	}

	history, err := env.conversations.History(ctx, login.User.ID)
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(history) != 1 || history[0].UserText != "hi" || history[0].BotReply != "hello" {
		t.Fatalf("unexpected history: %+v", history)
	}

	export, err := env.conversations.ExportText(ctx, login.User.ID)
	if err != nil {
		t.Fatalf("ExportText error: %v", err)
	}
	lines := strings.Split(export, "\n")
	if len(lines) != 3 || lines[0] == "" || lines[1] == "" || lines[2] != "" {
		t.Fatalf("expected two non-empty lines plus a trailing blank, got %q", lines)
	}
	if !strings.HasSuffix(lines[0], "] You: hi") || !strings.HasSuffix(lines[1], "] Bot: hello") {
		t.Fatalf("unexpected export lines %q", lines)
	}
}

func TestHandleTurnReplaysHistoryWithRolePrompt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.mustRegister(t, "a@x.com", "pw1")

	completer := &fakeCompleter{reply: "r"}
	chat := newTestChatService(env, completer)
	for _, text := range []string{"first", "second"} {
		if _, err := chat.HandleTurn(ctx, Actor{UserID: user.ID, Role: "guru"}, text); err != nil {
			t.Fatalf("HandleTurn error: %v", err)
		}
	}

	last := completer.inputs[len(completer.inputs)-1]
	if len(last) != 4 {
		t.Fatalf("expected system + 1 turn + new user message, got %d", len(last))
	}
	if last[0].Content != env.registry.Resolve("guru").Prompt {
		t.Fatalf("expected guru prompt, got %q", last[0].Content)
	}
	if last[1].Content != "first" || last[2].Content != "r" || last[3].Content != "second" {
		t.Fatalf("unexpected context %+v", last)
	}
}

func TestHandleTurnGatewayFailurePersistsNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.mustRegister(t, "a@x.com", "pw1")

	gwErr := &ai.GatewayError{Attempts: 1, Err: errors.New("quota exceeded")}
	chat := newTestChatService(env, &fakeCompleter{err: gwErr})

	_, err := chat.HandleTurn(ctx, Actor{UserID: user.ID, Role: "default"}, "hi")
	var got *ai.GatewayError
	if !errors.As(err, &got) || got.Error() != "quota exceeded" {
		t.Fatalf("expected gateway error, got %v", err)
	}

	history, err := env.conversations.History(ctx, user.ID)
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("failed turn must not be stored, got %+v", history)
	}
}

func TestHandleTurnValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.mustRegister(t, "a@x.com", "pw1")

	completer := &fakeCompleter{reply: "never"}
	chat := newTestChatService(env, completer)

	if _, err := chat.HandleTurn(ctx, Actor{UserID: user.ID}, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := chat.HandleTurn(ctx, Actor{}, "hi"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if completer.calls != 0 {
		t.Fatalf("gateway must not be called for rejected turns, calls=%d", completer.calls)
	}
}
