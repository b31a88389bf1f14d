package mcpserver_test

import (
	"context"
	"errors"
	"os"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/speakeasy/internal/assess"
	"github.com/MrWong99/speakeasy/internal/assess/feedback"
	"github.com/MrWong99/speakeasy/internal/mcpserver"
	"github.com/MrWong99/speakeasy/internal/practice"
	"github.com/MrWong99/speakeasy/internal/synth"
	"github.com/MrWong99/speakeasy/pkg/provider/tts/mock"
)

type noTranscriber struct{}

func (noTranscriber) Transcribe(context.Context, string, string) assess.Transcription {
	return assess.Transcription{}
}

// connect starts srv on an in-memory transport and returns a client session.
func connect(t *testing.T, srv *mcpserver.Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientT, serverT := mcpsdk.NewInMemoryTransports()

	ss, err := srv.MCP().Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func newServer(t *testing.T, p *mock.Provider) (*mcpserver.Server, *synth.Orchestrator) {
	t.Helper()
	scorer, err := assess.New(assess.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	svc := practice.New(noTranscriber{}, scorer, feedback.New())
	o, err := synth.New(t.TempDir(), []synth.Stage{{Name: "edge", Reach: synth.Online, Provider: p}})
	if err != nil {
		t.Fatal(err)
	}
	return mcpserver.New("test", svc, o), o
}

func TestListTools(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, &mock.Provider{})
	cs := connect(t, srv)

	names := map[string]bool{}
	for tool, err := range cs.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatal(err)
		}
		names[tool.Name] = true
	}
	for _, want := range []string{mcpserver.ToolAssess, mcpserver.ToolSynthesize} {
		if !names[want] {
			t.Errorf("tool %s not listed (got %v)", want, names)
		}
	}
}

func TestAssessPronunciation(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, &mock.Provider{})
	cs := connect(t, srv)

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name: mcpserver.ToolAssess,
		Arguments: map[string]any{
			"expected_text":    "I like to eat apples",
			"transcribed_text": "I like to eat",
		},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %v", res.Content)
	}
	out, ok := res.StructuredContent.(map[string]any)
	if !ok {
		t.Fatalf("structured content = %T", res.StructuredContent)
	}
	if out["word_accuracy"] != 80.0 {
		t.Errorf("word_accuracy = %v, want 80", out["word_accuracy"])
	}
	corr, _ := out["corrections"].([]any)
	if len(corr) != 1 {
		t.Errorf("corrections = %v", out["corrections"])
	}
	if len(res.Content) == 0 {
		t.Error("missing text summary")
	}
}

func TestAssessPronunciation_MissingText(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, &mock.Provider{})
	cs := connect(t, srv)

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      mcpserver.ToolAssess,
		Arguments: map[string]any{"expected_text": "hello", "transcribed_text": ""},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Error("expected a tool error for empty transcription")
	}
}

func TestSynthesizeSpeech(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Audio: []byte("ID3-hello")}
	srv, o := newServer(t, p)
	cs := connect(t, srv)

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      mcpserver.ToolSynthesize,
		Arguments: map[string]any{"text": "hello", "gender": "male", "accent": "indian"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %v", res.Content)
	}
	if len(res.Content) != 1 {
		t.Fatalf("content = %v", res.Content)
	}
	ac, ok := res.Content[0].(*mcpsdk.AudioContent)
	if !ok {
		t.Fatalf("content[0] = %T, want audio", res.Content[0])
	}
	if string(ac.Data) != "ID3-hello" || ac.MIMEType != "audio/mpeg" {
		t.Errorf("audio = %q (%s)", ac.Data, ac.MIMEType)
	}
	if call, _ := p.LastCall(); call.Voice.ID != "en-IN-PrabhatNeural" {
		t.Errorf("voice = %q", call.Voice.ID)
	}

	entries, err := os.ReadDir(o.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("audio file left behind: %v", entries)
	}
}

func TestSynthesizeSpeech_Unavailable(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, &mock.Provider{Err: errors.New("offline")})
	cs := connect(t, srv)

	for _, args := range []map[string]any{
		{"text": "hello"},
		{"text": "hello", "mode": "sideways"},
	} {
		res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: mcpserver.ToolSynthesize, Arguments: args})
		if err != nil {
			t.Fatalf("CallTool(%v): %v", args, err)
		}
		if !res.IsError {
			t.Errorf("CallTool(%v): expected tool error", args)
		}
	}
}
