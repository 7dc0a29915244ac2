package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/inkwell/account-service/internal/core/domain"
	"github.com/inkwell/account-service/internal/core/ports"
)

const (
	collectionAccounts = "accounts"
	collectionCounters = "counters"

	accountsCounterID = "accounts"

	indexEmail    = "uniq_email"
	indexUsername = "uniq_username"
	indexCode     = "uniq_confirmation_token"
)

// AccountRepository implements ports.AccountRepository on MongoDB. Numeric ids
// come from a counters collection incremented atomically per insert.
type AccountRepository struct {
	col      *mongo.Collection
	counters *mongo.Collection
}

func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{
		col:      db.Collection(collectionAccounts),
		counters: db.Collection(collectionCounters),
	}
}

type accountDoc struct {
	ID           int64    `bson:"_id"`
	Email        string   `bson:"email"`
	Username     string   `bson:"username,omitempty"`
	Name         string   `bson:"name,omitempty"`
	LastName     string   `bson:"last_name,omitempty"`
	PasswordHash string   `bson:"password_hash"`
	Role         string   `bson:"role,omitempty"`
	Permissions  []string `bson:"permissions,omitempty"`

	Active         bool `bson:"active"`
	EmailConfirmed bool `bson:"email_confirmed"`

	ConfirmationToken   string     `bson:"confirmation_token,omitempty"`
	ConfirmationSentAt  *time.Time `bson:"confirmation_sent_at,omitempty"`
	ConfirmationExpires *time.Time `bson:"confirmation_expires,omitempty"`

	CreatedAt time.Time  `bson:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at"`
	LastLogin *time.Time `bson:"last_login,omitempty"`
}

type counterDoc struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

func toDoc(a *domain.Account) accountDoc {
	return accountDoc{
		ID:                  a.ID,
		Email:               a.Email,
		Username:            a.Username,
		Name:                a.Name,
		LastName:            a.LastName,
		PasswordHash:        a.PasswordHash,
		Role:                a.Role,
		Permissions:         a.Permissions,
		Active:              a.Active,
		EmailConfirmed:      a.EmailConfirmed,
		ConfirmationToken:   a.ConfirmationToken,
		ConfirmationSentAt:  utcPtr(a.ConfirmationSentAt),
		ConfirmationExpires: utcPtr(a.ConfirmationExpires),
		CreatedAt:           a.CreatedAt.UTC(),
		UpdatedAt:           a.UpdatedAt.UTC(),
		LastLogin:           utcPtr(a.LastLogin),
	}
}

func (d accountDoc) toDomain() *domain.Account {
	return &domain.Account{
		ID:                  d.ID,
		Email:               d.Email,
		Username:            d.Username,
		Name:                d.Name,
		LastName:            d.LastName,
		PasswordHash:        d.PasswordHash,
		Role:                d.Role,
		Permissions:         d.Permissions,
		Active:              d.Active,
		EmailConfirmed:      d.EmailConfirmed,
		ConfirmationToken:   d.ConfirmationToken,
		ConfirmationSentAt:  utcPtr(d.ConfirmationSentAt),
		ConfirmationExpires: utcPtr(d.ConfirmationExpires),
		CreatedAt:           d.CreatedAt.UTC(),
		UpdatedAt:           d.UpdatedAt.UTC(),
		LastLogin:           utcPtr(d.LastLogin),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func (r *AccountRepository) nextID(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var c counterDoc
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": accountsCounterID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("next account id: %w", err)
	}
	return c.Seq, nil
}

// Create assigns the next id and inserts the account.
func (r *AccountRepository) Create(ctx context.Context, acc *domain.Account) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	id, err := r.nextID(ctx)
	if err != nil {
		return nil, err
	}
	created := acc.Clone()
	created.ID = id

	if _, err := r.col.InsertOne(ctx, toDoc(created)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, duplicateError(err)
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return created, nil
}

func duplicateError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, indexUsername):
		return domain.ErrUsernameTaken
	case strings.Contains(msg, indexCode):
		return domain.ErrConfirmationCodeTaken
	}
	return domain.ErrEmailTaken
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var d accountDoc
	if err := r.col.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return d.toDomain(), nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	if username == "" {
		return nil, domain.ErrAccountNotFound
	}
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *AccountRepository) FindByConfirmationToken(ctx context.Context, token string) (*domain.Account, error) {
	if token == "" {
		return nil, domain.ErrAccountNotFound
	}
	return r.findOne(ctx, bson.M{"confirmation_token": token})
}

// Update replaces the stored document with acc.
func (r *AccountRepository) Update(ctx context.Context, acc *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": acc.ID}, toDoc(acc))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicateError(err)
		}
		return fmt.Errorf("update account: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) List(ctx context.Context, f ports.ListAccountsFilter) ([]*domain.Account, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{}
	if f.Role != "" {
		filter["role"] = f.Role
	}
	if f.Permission != "" {
		filter["permissions"] = f.Permission
	}
	if f.Active != nil {
		filter["active"] = *f.Active
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(f.Skip)).
		SetLimit(int64(f.Limit))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]*domain.Account, 0, f.Limit)
	for cur.Next(ctx) {
		var d accountDoc
		if err := cur.Decode(&d); err != nil {
			return nil, 0, fmt.Errorf("decode account: %w", err)
		}
		out = append(out, d.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	return out, total, nil
}

// EnsureIndexes creates the uniqueness and lookup indexes on the accounts
// collection. Username is optional, so its unique index is sparse. Live
// confirmation codes are unique; cleared codes are absent from the document
// and fall outside the partial filter.
func (r *AccountRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(indexEmail).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetName(indexUsername).SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "confirmation_token", Value: 1}},
			Options: options.Index().SetName(indexCode).SetUnique(true).
				SetPartialFilterExpression(bson.M{"confirmation_token": bson.M{"$type": "string"}}),
		},
		{Keys: bson.D{{Key: "role", Value: 1}}},
		{Keys: bson.D{{Key: "permissions", Value: 1}}},
		{Keys: bson.D{{Key: "active", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
