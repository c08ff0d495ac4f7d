package user

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the full credential record as stored in the users collection.
// PasswordHash and RefreshToken never leave the repo layer except through
// the explicit WithPassword/WithRefreshToken reads.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	RollNo       string             `bson:"roll_no" json:"-"`
	Name         string             `bson:"name" json:"-"`
	Email        string             `bson:"email_id" json:"-"`
	PasswordHash string             `bson:"password,omitempty" json:"-"`
	RefreshToken string             `bson:"refreshToken,omitempty" json:"-"`
	CreatedAt    time.Time          `bson:"createdAt" json:"-"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"-"`
}

// Public is the projection safe to put on the wire: everything except the
// password hash and the refresh token.
type Public struct {
	ID        string    `json:"_id"`
	RollNo    string    `json:"roll_no"`
	Name      string    `json:"name"`
	Email     string    `json:"email_id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u User) Public() Public {
	return Public{
		ID:        u.ID.Hex(),
		RollNo:    u.RollNo,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
