package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vkoval/agora/internal/repository"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every repository
// works identically inside and outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements repository.Store over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	repos
}

type repos struct {
	users      *UserRepo
	channels   *ChannelRepo
	members    *MembershipRepo
	messages   *MessageRepo
	deliveries *DeliveryRepo
	prefs      *TopicPreferenceRepo
	reactions  *ReactionRepo
}

func newRepos(db Querier) repos {
	return repos{
		users:      &UserRepo{db: db},
		channels:   &ChannelRepo{db: db},
		members:    &MembershipRepo{db: db},
		messages:   &MessageRepo{db: db},
		deliveries: &DeliveryRepo{db: db},
		prefs:      &TopicPreferenceRepo{db: db},
		reactions:  &ReactionRepo{db: db},
	}
}

func (r repos) Users() repository.UserRepository                       { return r.users }
func (r repos) Channels() repository.ChannelRepository                 { return r.channels }
func (r repos) Memberships() repository.MembershipRepository           { return r.members }
func (r repos) Messages() repository.MessageRepository                 { return r.messages }
func (r repos) Deliveries() repository.DeliveryRepository              { return r.deliveries }
func (r repos) TopicPreferences() repository.TopicPreferenceRepository { return r.prefs }
func (r repos) Reactions() repository.ReactionRepository               { return r.reactions }

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, repos: newRepos(pool)}
}

// WithinTx runs fn inside one database transaction. Row locks taken through
// the transaction-bound repositories serialize concurrent mutation of the
// same delivery records.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgtx.Rollback(ctx)

	if err := fn(ctx, txHandle{newRepos(pgtx)}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txHandle struct {
	repos
}
