package ledger

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultFirestoreCollection holds one document per dispatched event identity
const DefaultFirestoreCollection = "herald_dispatches"

// Firestore keeps reservations in a Firestore collection. DocumentRef.Create fails with
// AlreadyExists for an existing document, which makes it the atomic check-and-create.
type Firestore struct {
	client     *firestore.Client
	collection string
}

var _ interfaces.DispatchLedger = (*Firestore)(nil)

// NewFirestore connects to the database of projectID. An empty databaseID selects the default
// database. FIRESTORE_EMULATOR_HOST is honoured by the client library.
func NewFirestore(ctx context.Context, projectID, databaseID, collection string) (*Firestore, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	if collection == "" {
		collection = DefaultFirestoreCollection
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID), goerr.V("database_id", databaseID))
	}

	return &Firestore{client: client, collection: collection}, nil
}

// Close closes the client
func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) doc(eventID types.EventID) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(string(eventID))
}

func (f *Firestore) Reserve(ctx context.Context, run *model.PipelineRun) (*model.PipelineRun, error) {
	_, err := f.doc(run.EventID).Create(ctx, run)
	if err == nil {
		return run, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return nil, goerr.Wrap(err, "failed to create reservation", goerr.V("event_id", run.EventID))
	}

	return reservedBy(ctx, run.EventID, f.Get)
}

func (f *Firestore) Release(ctx context.Context, eventID types.EventID) error {
	if _, err := f.doc(eventID).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete reservation", goerr.V("event_id", eventID))
	}
	return nil
}

func (f *Firestore) Update(ctx context.Context, run *model.PipelineRun) error {
	// Exists precondition keeps a released reservation from being resurrected.
	if _, err := f.doc(run.EventID).Update(ctx, []firestore.Update{
		{Path: "id", Value: run.ID},
		{Path: "status", Value: run.Status},
		{Path: "current_stage_index", Value: run.CurrentStageIndex},
		{Path: "engine_handle", Value: run.EngineHandle},
		{Path: "finished_at", Value: run.FinishedAt},
		{Path: "failure", Value: run.Failure},
	}); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(types.ErrRunNotFound, "no reservation to update", goerr.V("event_id", run.EventID))
		}
		return goerr.Wrap(err, "failed to update run", goerr.V("event_id", run.EventID))
	}
	return nil
}

func (f *Firestore) Get(ctx context.Context, eventID types.EventID) (*model.PipelineRun, error) {
	snap, err := f.doc(eventID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(types.ErrRunNotFound, "no run for event", goerr.V("event_id", eventID))
		}
		return nil, goerr.Wrap(err, "failed to get run", goerr.V("event_id", eventID))
	}

	var run model.PipelineRun
	if err := snap.DataTo(&run); err != nil {
		return nil, goerr.Wrap(err, "failed to decode run", goerr.V("event_id", eventID))
	}
	return &run, nil
}
