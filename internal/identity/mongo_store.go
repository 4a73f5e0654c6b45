package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/studcloud/sso/internal/token"
)

const userCollection = "users"

type mongoToken struct {
	Value     string    `bson:"value"`
	ExpiresAt time.Time `bson:"expires_at"`
}

type mongoStep struct {
	Done    bool        `bson:"done"`
	Pending *mongoToken `bson:"pending,omitempty"`
}

type mongoUser struct {
	ID           string  `bson:"_id"`
	Email        string  `bson:"email"`
	PasswordHash []byte  `bson:"password_hash"`
	PasswordSalt []byte  `bson:"password_salt"`
	Profile      Profile `bson:"profile"`
	Verification struct {
		Mail     mongoStep   `bson:"mail"`
		Mobile   mongoStep   `bson:"mobile"`
		Document mongoStep   `bson:"document"`
		Password *mongoToken `bson:"password,omitempty"`
	} `bson:"verification"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoStore implements Store on a MongoDB collection with a unique email index.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore builds a Mongo-backed user store and ensures its indexes.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	coll := db.Collection(userCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("create user indexes: %w", err)
	}

	return &MongoStore{coll: coll}, nil
}

func (s *MongoStore) InsertUnique(ctx context.Context, user User) error {
	_, err := s.coll.InsertOne(ctx, toMongo(user))
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	return err
}

func (s *MongoStore) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (User, error) {
	var doc mongoUser
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return fromMongo(doc), nil
}

// UpdateIf issues one UpdateOne whose filter carries the whole condition.
func (s *MongoStore) UpdateIf(ctx context.Context, c Condition, m Mutation) (int64, error) {
	if m.empty() {
		return 0, errors.New("empty mutation")
	}

	res, err := s.coll.UpdateOne(ctx, mongoFilter(c), mongoUpdate(m))
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func mongoFilter(c Condition) bson.M {
	filter := bson.M{"email": c.Email}
	tokenPath := mongoTokenPath(c.Step)
	if c.Token != "" {
		filter[tokenPath+".value"] = c.Token
		filter[tokenPath+".expires_at"] = bson.M{"$gt": c.Now.UTC()}
	} else if c.Step.Verifiable() {
		filter[mongoStepPath(c.Step)+".done"] = bson.M{"$ne": true}
	}
	return filter
}

func mongoUpdate(m Mutation) bson.M {
	set := bson.M{}
	unset := bson.M{}
	if m.Complete {
		if m.Step.Verifiable() {
			set[mongoStepPath(m.Step)+".done"] = true
		}
		unset[mongoTokenPath(m.Step)] = ""
	}
	if m.Issue != nil {
		set[mongoTokenPath(m.Step)] = mongoToken{Value: m.Issue.Value, ExpiresAt: m.Issue.ExpiresAt.UTC()}
	}
	if m.Credential != nil {
		set["password_hash"] = m.Credential.Hash
		set["password_salt"] = m.Credential.Salt
	}
	if m.Phone != nil {
		set["profile.phone"] = *m.Phone
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

// Save writes credential and profile fields only.
func (s *MongoStore) Save(ctx context.Context, user User) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{
		"password_hash":      user.PasswordHash,
		"password_salt":      user.PasswordSalt,
		"profile.name":       user.Profile.Name,
		"profile.surname":    user.Profile.Surname,
		"profile.photo":      user.Profile.Photo,
		"profile.university": user.Profile.University,
		"profile.faculty":    user.Profile.Faculty,
		"profile.group":      user.Profile.Group,
		"profile.year":       user.Profile.Year,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func mongoStepPath(s Step) string {
	return "verification." + stepColumn(s)
}

func mongoTokenPath(s Step) string {
	if s.Verifiable() {
		return mongoStepPath(s) + ".pending"
	}
	return "verification.password"
}

func toMongoToken(t *token.Token) *mongoToken {
	if t == nil {
		return nil
	}
	return &mongoToken{Value: t.Value, ExpiresAt: t.ExpiresAt.UTC()}
}

func fromMongoToken(t *mongoToken) *token.Token {
	if t == nil || t.Value == "" {
		return nil
	}
	return &token.Token{Value: t.Value, ExpiresAt: t.ExpiresAt.UTC()}
}

func toMongo(u User) mongoUser {
	doc := mongoUser{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		PasswordSalt: u.PasswordSalt,
		Profile:      u.Profile,
		CreatedAt:    u.CreatedAt.UTC(),
	}
	v := u.Verification
	doc.Verification.Mail = mongoStep{Done: v.Mail.Done, Pending: toMongoToken(v.Mail.Pending)}
	doc.Verification.Mobile = mongoStep{Done: v.Mobile.Done, Pending: toMongoToken(v.Mobile.Pending)}
	doc.Verification.Document = mongoStep{Done: v.Document.Done, Pending: toMongoToken(v.Document.Pending)}
	doc.Verification.Password = toMongoToken(v.Password)
	return doc
}

func fromMongo(doc mongoUser) User {
	dv := doc.Verification
	return User{
		ID:           doc.ID,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		PasswordSalt: doc.PasswordSalt,
		Profile:      doc.Profile,
		Verification: Verification{
			Mail:     StepState{Done: dv.Mail.Done, Pending: fromMongoToken(dv.Mail.Pending)},
			Mobile:   StepState{Done: dv.Mobile.Done, Pending: fromMongoToken(dv.Mobile.Pending)},
			Document: StepState{Done: dv.Document.Done, Pending: fromMongoToken(dv.Document.Pending)},
			Password: fromMongoToken(dv.Password),
		},
		CreatedAt: doc.CreatedAt.UTC(),
	}
}
