package schools

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// School is the catalog document served to the front end.
type School struct {
	ID        string           `bson:"_id,omitempty" json:"id"`
	Name      string           `bson:"name" json:"name"`
	StartDate time.Time        `bson:"start_date" json:"start_date"`
	Address   Address          `bson:"address" json:"address"`
	Courses   []CourseSchedule `bson:"courses" json:"courses"`
}

type Address struct {
	City     string   `bson:"city" json:"city"`
	State    string   `bson:"state" json:"state"`
	ZipCode  string   `bson:"zip_code" json:"zip_code"`
	Street   string   `bson:"street" json:"street"`
	Building string   `bson:"building,omitempty" json:"building,omitempty"`
	Links    []string `bson:"links,omitempty" json:"links,omitempty"`
}

type CourseSchedule struct {
	CourseID string `bson:"course_id" json:"course_id"`
	Day      string `bson:"day" json:"day"`
	Time     string `bson:"time" json:"time"`
}

type Repository interface {
	List(ctx context.Context) ([]School, error)
	FindByID(ctx context.Context, id string) (*School, error)
	Create(ctx context.Context, s *School) error
}

type mongoSchoolRepo struct {
	col *mongo.Collection
}

func NewMongoSchoolRepo(db *mongo.Database, collection string) Repository {
	return &mongoSchoolRepo{col: db.Collection(collection)}
}

func (r *mongoSchoolRepo) List(ctx context.Context) ([]School, error) {
	cur, err := r.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var out []School
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mongoSchoolRepo) FindByID(ctx context.Context, id string) (*School, error) {
	var s School
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *mongoSchoolRepo) Create(ctx context.Context, s *School) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.col.InsertOne(ctx, s)
	return err
}
