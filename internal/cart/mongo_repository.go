package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IdleCartTTL is how long an untouched cart survives in Mongo.
const IdleCartTTL = 30 * 24 * time.Hour

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

type MongoRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
		now:        time.Now,
	}
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(IdleCartTTL / time.Second)),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoRepository) GetCart(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error) {
	var cart domain.Cart

	err := m.collection.FindOne(ctx, bson.M{"owner_key": owner.Key()}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

// AddLine first tries to merge into an existing line. If the product is not
// in the cart it pushes a new line, creating the cart if needed. A concurrent
// add of the same product loses the upsert on the unique owner_key index and
// falls back to the merge.
func (m *MongoRepository) AddLine(ctx context.Context, owner domain.CartOwner, line domain.CartLine) error {
	if line.Quantity <= 0 {
		return domain.NewValidationError("quantity", "must be positive")
	}
	now := m.now()
	if line.AddedAt.IsZero() {
		line.AddedAt = now
	}

	for range 2 {
		merged, err := m.mergeLine(ctx, owner, line, now)
		if err != nil || merged {
			return err
		}

		filter := bson.M{
			"owner_key":        owner.Key(),
			"lines.product_id": bson.M{"$ne": line.ProductID},
		}
		update := bson.M{
			"$push": bson.M{"lines": line},
			"$set":  bson.M{"updated_at": now},
			"$setOnInsert": bson.M{
				"owner":      owner,
				"created_at": now,
			},
		}
		_, err = m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to add new line: %w", err)
		}
	}
	return fmt.Errorf("failed to add line for product %d: concurrent update", line.ProductID)
}

func (m *MongoRepository) mergeLine(ctx context.Context, owner domain.CartOwner, line domain.CartLine, now time.Time) (bool, error) {
	filter := bson.M{
		"owner_key":        owner.Key(),
		"lines.product_id": line.ProductID,
	}
	update := bson.M{
		"$inc": bson.M{"lines.$.quantity": line.Quantity},
		"$set": bson.M{
			"lines.$.unit_price": line.UnitPrice,
			"lines.$.name":       line.Name,
			"updated_at":         now,
		},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to merge line: %w", err)
	}
	return result.MatchedCount == 1, nil
}

func (m *MongoRepository) UpdateLineQuantity(ctx context.Context, owner domain.CartOwner, productID int64, quantity int) error {
	filter := bson.M{
		"owner_key":        owner.Key(),
		"lines.product_id": productID,
	}
	update := bson.M{
		"$set": bson.M{
			"lines.$[elem].quantity": quantity,
			"updated_at":             m.now(),
		},
	}
	arrayFilters := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"elem.product_id": productID},
		},
	})

	result, err := m.collection.UpdateOne(ctx, filter, update, arrayFilters)
	if err != nil {
		return fmt.Errorf("failed to update line quantity: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (m *MongoRepository) RemoveLine(ctx context.Context, owner domain.CartOwner, productID int64) error {
	update := bson.M{
		"$pull": bson.M{"lines": bson.M{"product_id": productID}},
		"$set":  bson.M{"updated_at": m.now()},
	}

	result, err := m.collection.UpdateOne(ctx, bson.M{"owner_key": owner.Key()}, update)
	if err != nil {
		return fmt.Errorf("failed to remove line: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, owner domain.CartOwner) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"owner_key": owner.Key()})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}
