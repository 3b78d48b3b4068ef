package autopilot_test

import (
	"context"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/usecase/autopilot"
	"google.golang.org/genai"
)

type fakeGemini struct {
	reply    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.contents = contents
	f.config = config
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(f.reply, genai.RoleModel)},
		},
	}, nil
}

func TestGeminiResponder(t *testing.T) {
	gemini := &fakeGemini{reply: "  I love haiku too!  "}
	r := autopilot.NewGeminiResponder(gemini)

	history := []*model.Message{
		{ID: "1", SenderID: "other", Text: "do you write haiku?"},
		{ID: "2", SenderID: selfID, Text: "sometimes"},
	}
	reply, err := r.Reply(context.Background(), persona, selfID, history)
	gt.NoError(t, err)
	gt.Equal(t, reply, "I love haiku too!")

	system := gemini.config.SystemInstruction.Parts[0].Text
	gt.S(t, system).Contains("a curious poet")
	gt.S(t, system).Contains("Interests: poetry")

	transcript := gemini.contents[0].Parts[0].Text
	gt.True(t, strings.Contains(transcript, "them: do you write haiku?"))
	gt.True(t, strings.Contains(transcript, "me: sometimes"))
}

func TestGeminiResponderRejectsEmptyReply(t *testing.T) {
	r := autopilot.NewGeminiResponder(&fakeGemini{reply: " "})
	_, err := r.Reply(context.Background(), nil, selfID, nil)
	gt.Error(t, err)
}

func TestCannedResponder(t *testing.T) {
	reply, err := autopilot.CannedResponder{}.Reply(context.Background(), persona, selfID, nil)
	gt.NoError(t, err)
	gt.Equal(t, reply, "How lovely")

	reply, err = autopilot.CannedResponder{}.Reply(context.Background(), nil, selfID, nil)
	gt.NoError(t, err)
	gt.NotEqual(t, reply, "")
}
