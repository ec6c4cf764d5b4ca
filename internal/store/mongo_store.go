package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/model"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	productsCollection = "products"
	cartsCollection    = "carts"
)

// MongoStore keeps each product and cart as its own document. Writes are atomic per document only.
type MongoStore struct {
	client   *mongo.Client
	products *mongo.Collection
	carts    *mongo.Collection
	now      func() time.Time
}

type mongoProduct struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty"`
	Title       string               `bson:"title"`
	Description string               `bson:"description"`
	Code        string               `bson:"code"`
	Price       primitive.Decimal128 `bson:"price"`
	Stock       int                  `bson:"stock"`
	Status      bool                 `bson:"status"`
	Category    string               `bson:"category"`
	Thumbnails  []string             `bson:"thumbnails"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

type mongoLine struct {
	Product  primitive.ObjectID `bson:"product"`
	Quantity int                `bson:"quantity"`
}

type mongoCart struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Products     []mongoLine        `bson:"products"`
	Status       string             `bson:"status"`
	CreatedAt    time.Time          `bson:"createdAt"`
	LastModified time.Time          `bson:"lastModified"`
	Version      int64              `bson:"version"`
}

// NewMongoStore binds the store to database db and ensures the unique index on products.code.
// The store takes ownership of client and disconnects it on Close.
func NewMongoStore(ctx context.Context, client *mongo.Client, db string) (*MongoStore, error) {
	database := client.Database(db)
	s := &MongoStore{
		client:   client,
		products: database.Collection(productsCollection),
		carts:    database.Collection(cartsCollection),
		now:      time.Now,
	}
	_, err := s.products.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("code_unique"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create products.code index: %w", err)
	}
	return s, nil
}

func (s *MongoStore) ListProducts(ctx context.Context, q model.ProductQuery) ([]model.Product, int, error) {
	filter, err := mongoFilter(q)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.products.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	opts := options.Find()
	if field, ok := mongoSortFields[q.SortBy]; ok {
		dir := 1
		if q.Order == model.OrderDesc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: field, Value: dir}, {Key: "_id", Value: 1}})
		if q.SortBy == model.SortByTitle {
			opts.SetCollation(&options.Collation{Locale: "en", Strength: 2})
		}
	} else {
		opts.SetSort(bson.D{{Key: "_id", Value: 1}})
	}
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.products.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find products: %w", err)
	}
	var docs []mongoProduct
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode products: %w", err)
	}
	products := make([]model.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.toModel()
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, int(total), nil
}

var mongoSortFields = map[string]string{
	model.SortByPrice:     "price",
	model.SortByTitle:     "title",
	model.SortByStock:     "stock",
	model.SortByCode:      "code",
	model.SortByCreatedAt: "createdAt",
}

func mongoFilter(q model.ProductQuery) (bson.M, error) {
	filter := bson.M{}
	if q.Category != "" {
		filter["category"] = primitive.Regex{Pattern: regexp.QuoteMeta(q.Category), Options: "i"}
	}
	if q.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(q.Search), Options: "i"}
		filter["$or"] = bson.A{bson.M{"title": pattern}, bson.M{"description": pattern}}
	}
	if q.MinPrice != nil || q.MaxPrice != nil {
		price := bson.M{}
		if q.MinPrice != nil {
			d, err := toDecimal128(*q.MinPrice)
			if err != nil {
				return nil, err
			}
			price["$gte"] = d
		}
		if q.MaxPrice != nil {
			d, err := toDecimal128(*q.MaxPrice)
			if err != nil {
				return nil, err
			}
			price["$lte"] = d
		}
		filter["price"] = price
	}
	if q.Available != nil {
		available := bson.M{"status": true, "stock": bson.M{"$gt": 0}}
		if *q.Available {
			filter["$and"] = bson.A{available}
		} else {
			filter["$nor"] = bson.A{available}
		}
	}
	return filter, nil
}

func (s *MongoStore) FindProductByID(ctx context.Context, id string) (*model.Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, serrors.ErrProductNotFound
	}
	var doc mongoProduct
	if err := s.products.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product %s: %w", id, err)
	}
	p, err := doc.toModel()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MongoStore) FindProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return []model.Product{}, nil
	}
	cursor, err := s.products.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	var docs []mongoProduct
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	products := make([]model.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.toModel()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (s *MongoStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	doc, err := fromModelMongoProduct(p)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	doc.ID = primitive.NewObjectID()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if _, err := s.products.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, serrors.ErrDuplicateCode
		}
		return nil, fmt.Errorf("failed to insert product: %w", err)
	}
	created, err := doc.toModel()
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateProduct reads, mutates and replaces the document. Concurrent writers to the same
// document resolve as last write wins.
func (s *MongoStore) UpdateProduct(ctx context.Context, id string, mutate ProductMutator) (*model.Product, error) {
	current, err := s.FindProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	createdAt := current.CreatedAt
	if err := mutate(current); err != nil {
		return nil, err
	}
	doc, err := fromModelMongoProduct(*current)
	if err != nil {
		return nil, err
	}
	doc.ID, _ = primitive.ObjectIDFromHex(id)
	doc.CreatedAt = createdAt
	doc.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)

	res, err := s.products.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, serrors.ErrDuplicateCode
		}
		return nil, fmt.Errorf("failed to replace product %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return nil, serrors.ErrProductNotFound
	}
	updated, err := doc.toModel()
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *MongoStore) DeleteProduct(ctx context.Context, id string) (*model.Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, serrors.ErrProductNotFound
	}
	var doc mongoProduct
	if err := s.products.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to delete product %s: %w", id, err)
	}
	removed, err := doc.toModel()
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

// DecrementStock issues one conditional $inc per product. Lines already applied are not rolled
// back when a later one fails; that case is reported as a PartialDecrementError.
func (s *MongoStore) DecrementStock(ctx context.Context, changes []model.StockChange) error {
	merged := mergeChanges(changes)
	applied := make([]model.StockChange, 0, len(merged))
	for _, c := range merged {
		err := s.decrementOne(ctx, c)
		if err == nil {
			applied = append(applied, c)
			continue
		}
		if len(applied) == 0 {
			return err
		}
		return &serrors.PartialDecrementError{Applied: applied, Failed: c, Err: err}
	}
	return nil
}

func (s *MongoStore) decrementOne(ctx context.Context, c model.StockChange) error {
	oid, err := primitive.ObjectIDFromHex(c.ProductID)
	if err != nil {
		return &serrors.InsufficientStockError{Lines: []serrors.StockShortage{{ProductID: c.ProductID, Requested: c.Quantity}}}
	}
	res, err := s.products.UpdateOne(ctx,
		bson.M{"_id": oid, "stock": bson.M{"$gte": c.Quantity}},
		bson.M{
			"$inc": bson.M{"stock": -c.Quantity},
			"$set": bson.M{"updatedAt": s.now().UTC().Truncate(time.Millisecond)},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to decrement stock of product %s: %w", c.ProductID, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	available := 0
	if p, findErr := s.FindProductByID(ctx, c.ProductID); findErr == nil {
		available = p.Stock
	}
	return &serrors.InsufficientStockError{Lines: []serrors.StockShortage{{ProductID: c.ProductID, Requested: c.Quantity, Available: available}}}
}

func (s *MongoStore) ListCarts(ctx context.Context) ([]model.Cart, error) {
	cursor, err := s.carts.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find carts: %w", err)
	}
	var docs []mongoCart
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode carts: %w", err)
	}
	carts := make([]model.Cart, len(docs))
	for i, d := range docs {
		carts[i] = d.toModel()
	}
	return carts, nil
}

func (s *MongoStore) FindCartByID(ctx context.Context, id string) (*model.Cart, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, serrors.ErrCartNotFound
	}
	var doc mongoCart
	if err := s.carts.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to find cart %s: %w", id, err)
	}
	c := doc.toModel()
	return &c, nil
}

func (s *MongoStore) CreateCart(ctx context.Context) (*model.Cart, error) {
	doc, err := fromModelMongoCart(model.NewCart(s.now().UTC().Truncate(time.Millisecond)))
	if err != nil {
		return nil, err
	}
	doc.ID = primitive.NewObjectID()
	if _, err := s.carts.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert cart: %w", err)
	}
	c := doc.toModel()
	return &c, nil
}

// cartUpdateAttempts bounds the retries of a cart replace that lost a version race.
const cartUpdateAttempts = 8

// UpdateCart replaces the cart only if its version is unchanged since it was read, and retries
// the mutation on a lost race. Two concurrent mutators therefore never both apply to the same
// revision of a cart.
func (s *MongoStore) UpdateCart(ctx context.Context, id string, mutate CartMutator) (*model.Cart, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, serrors.ErrCartNotFound
	}
	for range cartUpdateAttempts {
		var stored mongoCart
		if err := s.carts.FindOne(ctx, bson.M{"_id": oid}).Decode(&stored); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, serrors.ErrCartNotFound
			}
			return nil, fmt.Errorf("failed to find cart %s: %w", id, err)
		}
		current := stored.toModel()
		if err := mutate(&current); err != nil {
			return nil, err
		}
		doc, err := fromModelMongoCart(current)
		if err != nil {
			return nil, err
		}
		doc.ID = oid
		doc.CreatedAt = stored.CreatedAt
		doc.LastModified = s.now().UTC().Truncate(time.Millisecond)
		doc.Version = stored.Version + 1

		res, err := s.carts.ReplaceOne(ctx, versionFilter(oid, stored.Version), doc)
		if err != nil {
			return nil, fmt.Errorf("failed to replace cart %s: %w", id, err)
		}
		if res.MatchedCount == 1 {
			c := doc.toModel()
			return &c, nil
		}
	}
	return nil, fmt.Errorf("failed to replace cart %s: concurrent updates after %d attempts", id, cartUpdateAttempts)
}

// versionFilter matches the cart at the given version. Carts written before versioning count as 0.
func versionFilter(oid primitive.ObjectID, version int64) bson.M {
	if version == 0 {
		return bson.M{"_id": oid, "$or": bson.A{bson.M{"version": 0}, bson.M{"version": bson.M{"$exists": false}}}}
	}
	return bson.M{"_id": oid, "version": version}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// mergeChanges sums quantities per product, keeping first-seen order.
func mergeChanges(changes []model.StockChange) []model.StockChange {
	index := make(map[string]int, len(changes))
	merged := make([]model.StockChange, 0, len(changes))
	for _, c := range changes {
		if i, ok := index[c.ProductID]; ok {
			merged[i].Quantity += c.Quantity
			continue
		}
		index[c.ProductID] = len(merged)
		merged = append(merged, c)
	}
	return merged
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("failed to convert price %s: %w", d, err)
	}
	return v, nil
}

func (d mongoProduct) toModel() (model.Product, error) {
	price, err := decimal.NewFromString(d.Price.String())
	if err != nil {
		return model.Product{}, fmt.Errorf("failed to decode price of product %s: %w", d.ID.Hex(), err)
	}
	thumbs := d.Thumbnails
	if thumbs == nil {
		thumbs = []string{}
	}
	return model.Product{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		Code:        d.Code,
		Price:       price,
		Stock:       d.Stock,
		Status:      d.Status,
		Category:    d.Category,
		Thumbnails:  thumbs,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}, nil
}

func fromModelMongoProduct(p model.Product) (mongoProduct, error) {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return mongoProduct{}, err
	}
	thumbs := p.Thumbnails
	if thumbs == nil {
		thumbs = []string{}
	}
	return mongoProduct{
		Title:       p.Title,
		Description: p.Description,
		Code:        p.Code,
		Price:       price,
		Stock:       p.Stock,
		Status:      p.Status,
		Category:    p.Category,
		Thumbnails:  thumbs,
	}, nil
}

func (d mongoCart) toModel() model.Cart {
	lines := make([]model.LineItem, len(d.Products))
	for i, l := range d.Products {
		lines[i] = model.LineItem{ProductID: l.Product.Hex(), Quantity: l.Quantity}
	}
	return model.Cart{
		ID:           d.ID.Hex(),
		Products:     lines,
		Status:       d.Status,
		CreatedAt:    d.CreatedAt.UTC(),
		LastModified: d.LastModified.UTC(),
	}
}

func fromModelMongoCart(c model.Cart) (mongoCart, error) {
	lines := make([]mongoLine, len(c.Products))
	for i, l := range c.Products {
		oid, err := primitive.ObjectIDFromHex(l.ProductID)
		if err != nil {
			return mongoCart{}, fmt.Errorf("product %q: %w", l.ProductID, serrors.ErrProductNotFound)
		}
		lines[i] = mongoLine{Product: oid, Quantity: l.Quantity}
	}
	return mongoCart{
		Products:     lines,
		Status:       c.Status,
		CreatedAt:    c.CreatedAt,
		LastModified: c.LastModified,
	}, nil
}
