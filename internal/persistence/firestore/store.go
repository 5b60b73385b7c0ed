// Package firestore is the hosted persistence backend. Each entity lives in
// its own top-level collection; uniqueness of emails, venue names and join
// codes is kept by claim documents written in the same transaction as the
// entity.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

const (
	employeesCollection      = "employees"
	emailClaimsCollection    = "employee_emails"
	credentialsCollection    = "credentials"
	locationsCollection      = "locations"
	locationNamesCollection  = "location_names"
	shiftsCollection         = "shifts"
	playlistsCollection      = "playlists"
	gamesCollection          = "games"
	joinCodesCollection      = "game_join_codes"
	playersCollection        = "players"
	invitesCollection        = "invites"
	sessionsCollection       = "sessions"
	oauthStatesCollection    = "oauth_states"
	streamingTokenCollection = "streaming_tokens"
)

// Store implements every repository interface of the persistence package on
// Cloud Firestore.
type Store struct {
	client *firestore.Client
}

var (
	_ persistence.EmployeeRepository   = (*Store)(nil)
	_ persistence.CredentialRepository = (*Store)(nil)
	_ persistence.LocationRepository   = (*Store)(nil)
	_ persistence.ShiftRepository      = (*Store)(nil)
	_ persistence.PlaylistRepository   = (*Store)(nil)
	_ persistence.GameRepository       = (*Store)(nil)
	_ persistence.PlayerRepository     = (*Store)(nil)
	_ persistence.InviteRepository     = (*Store)(nil)
	_ persistence.SessionRepository    = (*Store)(nil)
	_ persistence.OAuthRepository      = (*Store)(nil)
)

// Open connects to projectID. With FIRESTORE_EMULATOR_HOST set the client
// talks to the local emulator.
func Open(ctx context.Context, projectID string) (*Store, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// New wraps an existing client.
func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping reads a missing document to check connectivity.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Collection(employeesCollection).Doc("_ping").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return mapError(err)
	}
	return nil
}

func (s *Store) col(name string) *firestore.CollectionRef {
	return s.client.Collection(name)
}

// mapError converts gRPC status codes into persistence sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) ||
		errors.Is(err, persistence.ErrDuplicate) ||
		errors.Is(err, persistence.ErrConstraintViolation) ||
		errors.Is(err, persistence.ErrForeignKeyViolation) {
		return err
	}
	switch status.Code(err) {
	case codes.NotFound:
		return persistence.ErrNotFound
	case codes.AlreadyExists:
		return persistence.ErrDuplicate
	case codes.FailedPrecondition, codes.InvalidArgument:
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}
	return err
}

// collect drains it, decoding each snapshot with decode.
func collect[T any](it *firestore.DocumentIterator, decode func(*firestore.DocumentSnapshot) (T, error)) ([]T, error) {
	defer it.Stop()
	var out []T
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, mapError(err)
		}
		v, err := decode(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// deleteMatching removes every document q returns and counts them.
func (s *Store) deleteMatching(ctx context.Context, q firestore.Query) (int64, error) {
	it := q.Documents(ctx)
	defer it.Stop()

	bw := s.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			bw.End()
			return 0, mapError(err)
		}
		job, err := bw.Delete(snap.Ref)
		if err != nil {
			bw.End()
			return 0, mapError(err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	var removed int64
	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func claimKey(value string) string {
	// Document ids cannot contain slashes.
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "/", "%2F")
}

func decodeAs[T any](snap *firestore.DocumentSnapshot) (T, error) {
	var v T
	if err := snap.DataTo(&v); err != nil {
		return v, fmt.Errorf("decode %s: %w", snap.Ref.Path, err)
	}
	return v, nil
}
