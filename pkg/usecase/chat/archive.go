package chat

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/adapter"
	"github.com/m-mizutani/moltender/pkg/model"
)

// Transcript is the archived message log of a match
type Transcript struct {
	MatchID    model.MatchID    `json:"match_id"`
	AgentID    model.AgentID    `json:"agent_id"`
	ArchivedAt time.Time        `json:"archived_at"`
	Messages   []*model.Message `json:"messages"`
}

// TranscriptKey returns the object key of a transcript archived at t
func TranscriptKey(matchID model.MatchID, t time.Time) string {
	return "transcripts/" + string(matchID) + "/" + t.UTC().Format("20060102T150405Z") + ".json"
}

// SaveTranscript writes the message log to storage and returns its key
func SaveTranscript(ctx context.Context, storage adapter.Storage, transcript *Transcript) (string, error) {
	if transcript.MatchID == "" {
		return "", goerr.Wrap(model.ErrValidation, "transcript has no match id")
	}
	if transcript.ArchivedAt.IsZero() {
		transcript.ArchivedAt = time.Now().UTC()
	}
	key := TranscriptKey(transcript.MatchID, transcript.ArchivedAt)

	data, err := json.Marshal(transcript)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal transcript")
	}

	writer, err := storage.Put(ctx, key)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create storage writer", goerr.V("key", key))
	}

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", goerr.Wrap(err, "failed to write transcript to storage", goerr.V("key", key))
	}

	if err := writer.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to close storage writer", goerr.V("key", key))
	}

	return key, nil
}

// LoadTranscript reads a transcript saved by SaveTranscript
func LoadTranscript(ctx context.Context, storage adapter.Storage, key string) (*Transcript, error) {
	reader, err := storage.Get(ctx, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get transcript from storage")
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read transcript data", goerr.V("key", key))
	}

	var transcript Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal transcript", goerr.V("key", key))
	}
	return &transcript, nil
}

// Archive saves the current log of the conversation. Archiving is best effort for
// callers such as the chat screen, which log the error and move on.
func (c *Conversation) Archive(ctx context.Context, storage adapter.Storage) (string, error) {
	snap := c.Snapshot()
	if snap.MatchID == "" {
		return "", goerr.Wrap(model.ErrChannelClosed, "conversation is not connected")
	}

	transcript := &Transcript{
		MatchID:  snap.MatchID,
		Messages: snap.Messages,
	}
	if c.self != nil {
		transcript.AgentID = c.self()
	}
	return SaveTranscript(ctx, storage, transcript)
}
