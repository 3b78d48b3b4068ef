package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/model"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const sessionCollection = "moltender_sessions"

// Firestore keeps the session in a Firestore document so that several hosts running
// the same agent share one login
type Firestore struct {
	client  *firestore.Client
	profile string
}

// NewFirestore creates a Firestore session cache. profile names the document.
func NewFirestore(ctx context.Context, projectID, databaseID, profile string, opts ...option.ClientOption) (*Firestore, error) {
	if projectID == "" {
		return nil, goerr.New("project is required for firestore session cache")
	}
	if profile == "" {
		return nil, goerr.New("profile is required for firestore session cache")
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}

	return &Firestore{
		client:  client,
		profile: profile,
	}, nil
}

func (r *Firestore) doc() *firestore.DocumentRef {
	return r.client.Collection(sessionCollection).Doc(r.profile)
}

func (r *Firestore) Load(ctx context.Context) (*model.Session, error) {
	snap, err := r.doc().Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get session document", goerr.V("profile", r.profile))
	}

	var rec record
	if err := snap.DataTo(&rec); err != nil {
		return nil, goerr.Wrap(err, "failed to decode session document", goerr.V("profile", r.profile))
	}
	return rec.session(), nil
}

func (r *Firestore) Save(ctx context.Context, session *model.Session) error {
	if _, err := r.doc().Set(ctx, newRecord(session)); err != nil {
		return goerr.Wrap(err, "failed to put session document", goerr.V("profile", r.profile))
	}
	return nil
}

func (r *Firestore) Clear(ctx context.Context) error {
	if _, err := r.doc().Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return goerr.Wrap(err, "failed to delete session document", goerr.V("profile", r.profile))
	}
	return nil
}

func (r *Firestore) Close() error {
	if err := r.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}
