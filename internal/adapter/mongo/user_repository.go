package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pscheid92/taskboard/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type userDoc struct {
	Email      string         `bson:"email"`
	Attributes map[string]any `bson:"attributes,omitempty"`
	CreatedAt  time.Time      `bson:"created_at"`
}

type UserRepo struct {
	coll *mongo.Collection
}

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{coll: db.Collection(usersCollection)}
}

func (r *UserRepo) Create(ctx context.Context, user *domain.User) error {
	doc := userDoc{
		Email:      user.Email,
		Attributes: user.Attributes,
		CreatedAt:  user.CreatedAt.UTC().Truncate(time.Millisecond),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrUserExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var doc userDoc
	err := r.coll.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &domain.User{
		Email:      doc.Email,
		Attributes: doc.Attributes,
		CreatedAt:  doc.CreatedAt,
	}, nil
}
