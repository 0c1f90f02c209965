package stats

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultRatingsAverage is what a tour reports before anyone has reviewed it.
const DefaultRatingsAverage = 4.5

type Tour struct {
	bun.BaseModel `bun:"table:tours,alias:tour"`

	ID              uuid.UUID  `bun:"id,pk,notnull" json:"id"`
	Name            string     `bun:"name,notnull,unique" json:"name"`
	Price           float64    `bun:"price,notnull" json:"price"`
	RatingsAverage  float64    `bun:"ratings_average,notnull,default:4.5" json:"ratings_average"`
	RatingsQuantity int        `bun:"ratings_quantity,notnull,default:0" json:"ratings_quantity"`
	CreatedAt       *time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt       *time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
	DeletedAt       *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Review holds a single rating. One review per user per tour.
type Review struct {
	bun.BaseModel `bun:"table:reviews,alias:rev"`

	ID        uuid.UUID  `bun:"id,pk,notnull" json:"id"`
	Review    string     `bun:"review,notnull" json:"review"`
	Rating    int        `bun:"rating,notnull" json:"rating"`
	TourID    uuid.UUID  `bun:"tour_id,notnull" json:"tour_id"`
	UserID    uuid.UUID  `bun:"user_id,notnull" json:"user_id"`
	CreatedAt *time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt *time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Validate will run validation rules
func (r Review) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Review, validation.Required),
		validation.Field(&r.Rating, validation.Required, validation.Min(1), validation.Max(5)),
		validation.Field(&r.TourID, validation.Required, validation.By(validateUUID)),
		validation.Field(&r.UserID, validation.Required, validation.By(validateUUID)),
	)
}

func validateUUID(value any) error {
	id, ok := value.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return errors.New("must be a valid identifier")
	}
	return nil
}
