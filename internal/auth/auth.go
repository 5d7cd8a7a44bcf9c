package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/gatherly/gatherly/internal/database"
	"github.com/gatherly/gatherly/internal/token"
)

// ErrUnauthorized covers every authentication failure: missing, malformed,
// expired, or revoked credential, or an unknown subject. Boundaries map it to
// a generic 401 without disclosing which reason applied.
var ErrUnauthorized = errors.New("unauthorized")

// Authenticator resolves a caller identity from a bearer credential, or fails
// closed. It has no side effects and is safe to run on every request.
type Authenticator struct {
	log         *log.Logger
	tokens      *token.Manager
	revocations token.RevocationRegistry
	db          database.Repository
}

func NewAuthenticator(logger *log.Logger, tokens *token.Manager, revocations token.RevocationRegistry, db database.Repository) *Authenticator {
	return &Authenticator{
		log:         logger,
		tokens:      tokens,
		revocations: revocations,
		db:          db,
	}
}

// Authenticate validates the credential and resolves its subject in the
// directory. A registry outage also fails closed: a credential that cannot be
// checked against the revocation registry does not authenticate.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (database.User, error) {
	if credential == "" {
		return database.User{}, fmt.Errorf("%w: missing credential", ErrUnauthorized)
	}

	revoked, err := a.revocations.IsRevoked(ctx, credential)
	if err != nil {
		a.log.Println("revocation check:", err)
		return database.User{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if revoked {
		return database.User{}, fmt.Errorf("%w: revoked credential", ErrUnauthorized)
	}

	claims, err := a.tokens.Decode(credential)
	if err != nil {
		return database.User{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	user, err := a.db.GetAccountById(claims.UserId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.User{}, fmt.Errorf("%w: no such user", ErrUnauthorized)
		}
		return database.User{}, fmt.Errorf("authenticate: %w", err)
	}

	return user, nil
}

// Oracle answers authorization questions from membership and participation
// facts. It reads, never writes.
type Oracle struct {
	db database.Repository
}

func NewOracle(db database.Repository) *Oracle {
	return &Oracle{db: db}
}

func (o *Oracle) IsGroupMember(userId, groupId int) (bool, error) {
	return o.db.IsGroupMember(userId, groupId)
}

func (o *Oracle) IsEventParticipant(userId, eventId int, status string) (bool, error) {
	return o.db.IsEventParticipant(userId, eventId, status)
}

// CanAccessChat requires both facts: group membership and an attending
// participation. Live chat presence implies active event attendance.
func (o *Oracle) CanAccessChat(userId, groupId, eventId int) (bool, error) {
	member, err := o.db.IsGroupMember(userId, groupId)
	if err != nil || !member {
		return false, err
	}

	return o.db.IsEventParticipant(userId, eventId, database.StatusAttending)
}

// CanAccessPosts is the weaker gate: posting visibility is a group-level
// privilege, participation is not required.
func (o *Oracle) CanAccessPosts(userId, groupId int) (bool, error) {
	return o.db.IsGroupMember(userId, groupId)
}
