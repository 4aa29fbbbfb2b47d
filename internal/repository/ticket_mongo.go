package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

const (
	collectionTickets = "tickets"
	// maxUpdateAttempts bounds the optimistic retry loop in Update.
	maxUpdateAttempts = 5
)

type commentDocument struct {
	Author    string    `bson:"author"`
	Text      string    `bson:"text"`
	CreatedAt time.Time `bson:"created_at"`
}

type ticketDocument struct {
	ID          string            `bson:"_id"`
	Title       string            `bson:"title"`
	Description string            `bson:"description"`
	Priority    string            `bson:"priority"`
	Status      string            `bson:"status"`
	Reporter    string            `bson:"reporter"`
	Assignee    string            `bson:"assignee"`
	Comments    []commentDocument `bson:"comments"`
	Version     int64             `bson:"version"`
	CreatedAt   time.Time         `bson:"created_at"`
	UpdatedAt   time.Time         `bson:"updated_at"`
}

// MongoTicketRepository stores each ticket as one document with embedded
// comments. Field updates use a version compare-and-swap.
type MongoTicketRepository struct {
	col     *mongo.Collection
	timeout time.Duration
}

// NewMongoTicketRepository binds the repository to db.
func NewMongoTicketRepository(db *mongo.Database, timeout time.Duration) *MongoTicketRepository {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MongoTicketRepository{col: db.Collection(collectionTickets), timeout: timeout}
}

// EnsureIndexes creates the listing indexes.
func (r *MongoTicketRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "reporter", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

func (r *MongoTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	if err := validTicket(ticket); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	created := ticket.Clone()
	now := mongoNow(time.Now())
	created.ID = uuid.NewString()
	created.CreatedAt = now
	created.UpdatedAt = now
	created.Comments = []domain.Comment{}

	if _, err := r.col.InsertOne(ctx, toTicketDocument(created, 1)); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *MongoTicketRepository) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *MongoTicketRepository) find(ctx context.Context, id string) (*ticketDocument, error) {
	var doc ticketDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (r *MongoTicketRepository) ListAll(ctx context.Context) ([]domain.Ticket, error) {
	return r.list(ctx, bson.M{})
}

func (r *MongoTicketRepository) ListByReporter(ctx context.Context, reporter string) ([]domain.Ticket, error) {
	return r.list(ctx, bson.M{"reporter": reporter})
}

func (r *MongoTicketRepository) list(ctx context.Context, filter bson.M) ([]domain.Ticket, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	result := []domain.Ticket{}
	for cursor.Next(ctx) {
		var doc ticketDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, *doc.toDomain())
	}
	return result, cursor.Err()
}

func (r *MongoTicketRepository) Update(ctx context.Context, id string, mutate TicketMutator) (*domain.Ticket, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		doc, err := r.find(ctx, id)
		if err != nil {
			return nil, err
		}
		stored := doc.toDomain()
		working := stored.Clone()
		if err := mutate(working); err != nil {
			return nil, err
		}
		preserveImmutable(working, stored)
		working.UpdatedAt = nextMongoTime(time.Now(), stored.UpdatedAt)

		res, err := r.col.ReplaceOne(ctx,
			bson.M{"_id": id, "version": doc.Version},
			toTicketDocument(working, doc.Version+1))
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 1 {
			return working, nil
		}
	}
	return nil, ErrConflict
}

func (r *MongoTicketRepository) AppendComment(ctx context.Context, id string, comment domain.Comment) (*domain.Ticket, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	now := mongoNow(time.Now())
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = now
	}
	entry := commentDocument{Author: comment.Author, Text: comment.Text, CreatedAt: mongoNow(comment.CreatedAt)}

	// One pipeline write appends and bumps updated_at atomically. $literal keeps
	// user text beginning with $ from being read as a field path.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"comments":   bson.M{"$concatArrays": bson.A{bson.M{"$ifNull": bson.A{"$comments", bson.A{}}}, bson.M{"$literal": bson.A{entry}}}},
			"updated_at": bson.M{"$max": bson.A{now, bson.M{"$add": bson.A{"$updated_at", 1}}}},
			"version":    bson.M{"$add": bson.A{"$version", 1}},
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc ticketDocument
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *MongoTicketRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func toTicketDocument(t *domain.Ticket, version int64) ticketDocument {
	comments := make([]commentDocument, 0, len(t.Comments))
	for _, c := range t.Comments {
		comments = append(comments, commentDocument{Author: c.Author, Text: c.Text, CreatedAt: c.CreatedAt})
	}
	return ticketDocument{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		Reporter:    t.Reporter,
		Assignee:    t.Assignee,
		Comments:    comments,
		Version:     version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (d *ticketDocument) toDomain() *domain.Ticket {
	comments := make([]domain.Comment, 0, len(d.Comments))
	for _, c := range d.Comments {
		comments = append(comments, domain.Comment{Author: c.Author, Text: c.Text, CreatedAt: c.CreatedAt.UTC()})
	}
	return &domain.Ticket{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Priority:    domain.TicketPriority(d.Priority),
		Status:      domain.TicketStatus(d.Status),
		Reporter:    d.Reporter,
		Assignee:    d.Assignee,
		Comments:    comments,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// BSON dates carry millisecond precision.
func mongoNow(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func nextMongoTime(now, prev time.Time) time.Time {
	now = mongoNow(now)
	if !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}
