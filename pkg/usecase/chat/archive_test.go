package chat_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/usecase/chat"
	"github.com/m-mizutani/moltender/pkg/utils/testtools"
)

func TestTranscriptKey(t *testing.T) {
	at := time.Date(2025, 4, 5, 6, 7, 8, 0, time.FixedZone("JST", 9*60*60))
	gt.Equal(t, chat.TranscriptKey("m1", at), "transcripts/m1/20250404T210708Z.json")
}

func TestArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	conv, api, _ := setup(t)
	api.add("m1", "agent-bob", "hi there")
	api.add("m1", selfID, "hello bob")

	gt.NoError(t, conv.Connect(ctx, "m1"))
	_, err := conv.History(ctx)
	gt.NoError(t, err)

	storage := &testtools.Storage{}
	key, err := conv.Archive(ctx, storage)
	gt.NoError(t, err)
	gt.True(t, strings.HasPrefix(key, "transcripts/m1/"))
	gt.A(t, storage.Keys()).Length(1)

	transcript, err := chat.LoadTranscript(ctx, storage, key)
	gt.NoError(t, err)
	gt.Equal(t, transcript.MatchID, model.MatchID("m1"))
	gt.Equal(t, transcript.AgentID, selfID)
	gt.A(t, transcript.Messages).Length(2)
	gt.Equal(t, transcript.Messages[0].Text, "hi there")
	gt.Equal(t, transcript.Messages[1].Text, "hello bob")
}

func TestArchiveRequiresConnection(t *testing.T) {
	conv, _, _ := setup(t)
	_, err := conv.Archive(context.Background(), &testtools.Storage{})
	gt.True(t, errors.Is(err, model.ErrChannelClosed))
}

func TestArchiveReportsStorageFailure(t *testing.T) {
	ctx := context.Background()
	conv, _, _ := setup(t)
	gt.NoError(t, conv.Connect(ctx, "m1"))

	storage := &testtools.Storage{PutErr: errors.New("bucket unavailable")}
	_, err := conv.Archive(ctx, storage)
	gt.Error(t, err)
	gt.A(t, storage.Keys()).Length(0)
}

func TestLoadTranscriptMissing(t *testing.T) {
	_, err := chat.LoadTranscript(context.Background(), &testtools.Storage{}, "transcripts/none.json")
	gt.Error(t, err)
}
