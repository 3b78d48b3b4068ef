package autopilot

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/adapter"
	"github.com/m-mizutani/moltender/pkg/model"
	"google.golang.org/genai"
)

//go:embed prompt/reply.md
var replyPromptRaw string

var replyPromptTmpl = template.Must(template.New("reply").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(replyPromptRaw))

const maxReplyLength = 500

// Responder writes the next message of a conversation
type Responder interface {
	Reply(ctx context.Context, persona *model.Persona, self model.AgentID, history []*model.Message) (string, error)
}

// CannedResponder answers with a random persona reply
type CannedResponder struct{}

func (CannedResponder) Reply(_ context.Context, persona *model.Persona, _ model.AgentID, _ []*model.Message) (string, error) {
	return persona.CannedReply(), nil
}

// GeminiResponder asks Gemini to answer in character
type GeminiResponder struct {
	gemini adapter.Gemini
}

func NewGeminiResponder(gemini adapter.Gemini) *GeminiResponder {
	return &GeminiResponder{gemini: gemini}
}

func (r *GeminiResponder) Reply(ctx context.Context, persona *model.Persona, self model.AgentID, history []*model.Message) (string, error) {
	if persona == nil {
		persona = &model.Persona{}
	}

	var buf bytes.Buffer
	if err := replyPromptTmpl.Execute(&buf, map[string]any{
		"Persona":   persona,
		"MaxLength": maxReplyLength,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute reply prompt template")
	}

	var transcript strings.Builder
	for _, msg := range history {
		if msg.SenderID == self {
			transcript.WriteString("me: ")
		} else {
			transcript.WriteString("them: ")
		}
		transcript.WriteString(msg.Text)
		transcript.WriteString("\n")
	}

	contents := []*genai.Content{
		genai.NewContentFromText(transcript.String(), genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(buf.String(), ""),
	}

	resp, err := r.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate reply")
	}

	var reply strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			reply.WriteString(part.Text)
		}
		break
	}

	text := strings.TrimSpace(reply.String())
	if text == "" {
		return "", goerr.New("gemini returned an empty reply")
	}
	if runes := []rune(text); len(runes) > maxReplyLength {
		text = string(runes[:maxReplyLength])
	}
	return text, nil
}
