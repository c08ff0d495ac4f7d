package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/campushub/accounts/internal/domain/user"
	"github.com/campushub/accounts/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrUserNotFound = errors.New("user not found")
var ErrDuplicateUser = errors.New("user with email or roll number already exists")

// UsersRepo is the credential store. Reads come in three projections:
// public (no password, no refresh token), +password, +refreshToken. Which
// one a method returns is part of its contract, never a caller-side flag.
type UsersRepo struct {
	col  *mongo.Collection
	prom *observability.Prom
}

// NewUsersRepo wraps the users collection. prom may be nil (tests).
func NewUsersRepo(col *mongo.Collection, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{col: col, prom: prom}
}

var publicProjection = bson.M{"password": 0, "refreshToken": 0}

// NormalizeEmail matches the storage form of email_id: trimmed, lowercased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *UsersRepo) Create(ctx context.Context, rollNo, name, email, passwordHash string) (user.User, error) {
	now := time.Now().UTC()

	u := user.User{
		RollNo:       strings.TrimSpace(rollNo),
		Name:         strings.TrimSpace(name),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.observe("users.create", func() error {
		res, err := r.col.InsertOne(ctx, u)

		if err != nil {
			return err
		}

		id, ok := res.InsertedID.(primitive.ObjectID)

		if ok {
			u.ID = id
		}

		return nil
	})

	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, ErrDuplicateUser
		}

		return user.User{}, err
	}

	// never hand the hash back to callers of Create
	u.PasswordHash = ""

	return u, nil
}

// ExistsByEmailOrRoll is the registration fast path. The unique indexes
// remain the authoritative duplicate guard on insert.
func (r *UsersRepo) ExistsByEmailOrRoll(ctx context.Context, email, rollNo string) (bool, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"email_id": NormalizeEmail(email)},
		bson.M{"roll_no": strings.TrimSpace(rollNo)},
	}}

	var exists bool

	err := r.observe("users.exists", func() error {
		count, err := r.col.CountDocuments(ctx, filter, options.Count().SetLimit(1))

		if err != nil {
			return err
		}

		exists = count > 0

		return nil
	})

	if err != nil {
		return false, err
	}

	return exists, nil
}

// GetByEmailOrRollWithPassword resolves a login identifier. Either email
// or rollNo may be empty, but not both. Includes the password hash.
func (r *UsersRepo) GetByEmailOrRollWithPassword(ctx context.Context, email, rollNo string) (user.User, error) {
	or := bson.A{}

	if email != "" {
		or = append(or, bson.M{"email_id": NormalizeEmail(email)})
	}

	if rollNo != "" {
		or = append(or, bson.M{"roll_no": strings.TrimSpace(rollNo)})
	}

	if len(or) == 0 {
		return user.User{}, ErrUserNotFound
	}

	return r.findOne(ctx, "users.get_by_identifier", bson.M{"$or": or}, bson.M{"refreshToken": 0})
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	oid, err := objectID(id)

	if err != nil {
		return user.User{}, ErrUserNotFound
	}

	return r.findOne(ctx, "users.get_by_id", bson.M{"_id": oid}, publicProjection)
}

func (r *UsersRepo) GetByIDWithPassword(ctx context.Context, id string) (user.User, error) {
	oid, err := objectID(id)

	if err != nil {
		return user.User{}, ErrUserNotFound
	}

	return r.findOne(ctx, "users.get_with_password", bson.M{"_id": oid}, bson.M{"refreshToken": 0})
}

func (r *UsersRepo) GetByIDWithRefreshToken(ctx context.Context, id string) (user.User, error) {
	oid, err := objectID(id)

	if err != nil {
		return user.User{}, ErrUserNotFound
	}

	return r.findOne(ctx, "users.get_with_refresh", bson.M{"_id": oid}, bson.M{"password": 0})
}

// SetRefreshToken stores the current refresh token, overwriting any prior
// value. This is the rotation point: the previous token stops matching.
func (r *UsersRepo) SetRefreshToken(ctx context.Context, id, token string) error {
	return r.updateByID(ctx, "users.set_refresh", id, bson.M{
		"$set": bson.M{
			"refreshToken": token,
			"updatedAt":    time.Now().UTC(),
		},
	})
}

// ClearRefreshToken transitions the user to logged out. Clearing an
// already-absent token is not an error.
func (r *UsersRepo) ClearRefreshToken(ctx context.Context, id string) error {
	return r.updateByID(ctx, "users.clear_refresh", id, bson.M{
		"$unset": bson.M{"refreshToken": ""},
		"$set":   bson.M{"updatedAt": time.Now().UTC()},
	})
}

// UpdateProfile applies only the supplied fields and returns the updated
// public projection. A duplicate email maps to ErrDuplicateUser.
func (r *UsersRepo) UpdateProfile(ctx context.Context, id, name, email string) (user.User, error) {
	oid, err := objectID(id)

	if err != nil {
		return user.User{}, ErrUserNotFound
	}

	set := bson.M{"updatedAt": time.Now().UTC()}

	if name != "" {
		set["name"] = strings.TrimSpace(name)
	}

	if email != "" {
		set["email_id"] = NormalizeEmail(email)
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(publicProjection)

	var u user.User

	err = r.observe("users.update_profile", func() error {
		return r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).Decode(&u)
	})

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, ErrUserNotFound
		}

		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, ErrDuplicateUser
		}

		return user.User{}, err
	}

	return u, nil
}

// UpdatePassword persists a new password hash. Nothing else on the record
// is touched, so no revalidation of other fields happens here.
func (r *UsersRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.updateByID(ctx, "users.update_password", id, bson.M{
		"$set": bson.M{
			"password":  passwordHash,
			"updatedAt": time.Now().UTC(),
		},
	})
}

func (r *UsersRepo) findOne(ctx context.Context, op string, filter, projection bson.M) (user.User, error) {
	var u user.User

	err := r.observe(op, func() error {
		return r.col.FindOne(ctx, filter, options.FindOne().SetProjection(projection)).Decode(&u)
	})

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, ErrUserNotFound
		}

		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) updateByID(ctx context.Context, op, id string, update bson.M) error {
	oid, err := objectID(id)

	if err != nil {
		return ErrUserNotFound
	}

	return r.observe(op, func() error {
		res, err := r.col.UpdateByID(ctx, oid, update)

		if err != nil {
			return err
		}

		if res.MatchedCount == 0 {
			return ErrUserNotFound
		}

		return nil
	})
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom == nil {
		return fn()
	}

	return r.prom.ObserveDB(op, fn)
}

func objectID(id string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(strings.TrimSpace(id))
}
