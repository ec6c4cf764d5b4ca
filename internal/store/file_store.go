package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/guard"
	"github.com/abgdnv/storefront/internal/model"
	"github.com/shopspring/decimal"
)

// FileStore keeps products and carts as pretty-printed JSON arrays in two files.
// Every mutation rewrites the whole file and runs through a single FIFO queue, so
// read-modify-write sequences never interleave. Reads are not queued.
type FileStore struct {
	productsPath string
	cartsPath    string
	queue        *guard.Queue
	now          func() time.Time
}

// NewFileStore creates a store over the given files. Missing files read as empty collections
// and are created on the first write.
func NewFileStore(productsPath, cartsPath string) *FileStore {
	return &FileStore{
		productsPath: productsPath,
		cartsPath:    cartsPath,
		queue:        guard.NewQueue(256),
		now:          time.Now,
	}
}

type fileProduct struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Code        string          `json:"code"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Status      bool            `json:"status"`
	Category    string          `json:"category"`
	Thumbnails  []string        `json:"thumbnails"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type fileLine struct {
	Product  int64 `json:"product"`
	Quantity int   `json:"quantity"`
}

type fileCart struct {
	ID           int64      `json:"id"`
	Products     []fileLine `json:"products"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastModified time.Time  `json:"lastModified"`
}

// ListProducts returns the filtered page in file order unless a sort key is given.
func (s *FileStore) ListProducts(_ context.Context, q model.ProductQuery) ([]model.Product, int, error) {
	records, err := readCollection[fileProduct](s.productsPath)
	if err != nil {
		return nil, 0, err
	}
	products := make([]model.Product, len(records))
	for i, r := range records {
		products[i] = r.toModel()
	}
	page, total := applyQuery(products, q)
	return page, total, nil
}

// FindProductByID retrieves a product by its ID.
// Returns ErrProductNotFound if no product exists with the given ID.
func (s *FileStore) FindProductByID(_ context.Context, id string) (*model.Product, error) {
	numID, ok := parseFileID(id)
	if !ok {
		return nil, serrors.ErrProductNotFound
	}
	records, err := readCollection[fileProduct](s.productsPath)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.ID == numID {
			p := r.toModel()
			return &p, nil
		}
	}
	return nil, serrors.ErrProductNotFound
}

// FindProductsByIDs retrieves the products that exist among ids.
func (s *FileStore) FindProductsByIDs(_ context.Context, ids []string) ([]model.Product, error) {
	records, err := readCollection[fileProduct](s.productsPath)
	if err != nil {
		return nil, err
	}
	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if numID, ok := parseFileID(id); ok {
			wanted[numID] = struct{}{}
		}
	}
	found := make([]model.Product, 0, len(wanted))
	for _, r := range records {
		if _, ok := wanted[r.ID]; ok {
			found = append(found, r.toModel())
		}
	}
	return found, nil
}

// CreateProduct stores a new product with id max(id)+1.
func (s *FileStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	var created model.Product
	err := s.queue.Do(ctx, func() error {
		records, err := readCollection[fileProduct](s.productsPath)
		if err != nil {
			return err
		}
		if codeTaken(records, p.Code, -1) {
			return serrors.ErrDuplicateCode
		}
		now := s.now().UTC()
		record := fromModelProduct(p)
		record.ID = nextProductID(records)
		record.CreatedAt = now
		record.UpdatedAt = now
		if err := writeCollection(s.productsPath, append(records, record)); err != nil {
			return err
		}
		created = record.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateProduct applies mutate to the stored product inside the queue.
func (s *FileStore) UpdateProduct(ctx context.Context, id string, mutate ProductMutator) (*model.Product, error) {
	numID, ok := parseFileID(id)
	if !ok {
		return nil, serrors.ErrProductNotFound
	}
	var updated model.Product
	err := s.queue.Do(ctx, func() error {
		records, err := readCollection[fileProduct](s.productsPath)
		if err != nil {
			return err
		}
		idx := indexOfProduct(records, numID)
		if idx < 0 {
			return serrors.ErrProductNotFound
		}
		current := records[idx].toModel()
		if err := mutate(&current); err != nil {
			return err
		}
		if codeTaken(records, current.Code, idx) {
			return serrors.ErrDuplicateCode
		}
		record := fromModelProduct(current)
		record.ID = records[idx].ID
		record.CreatedAt = records[idx].CreatedAt
		record.UpdatedAt = s.now().UTC()
		records[idx] = record
		if err := writeCollection(s.productsPath, records); err != nil {
			return err
		}
		updated = record.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteProduct removes a product and returns it.
func (s *FileStore) DeleteProduct(ctx context.Context, id string) (*model.Product, error) {
	numID, ok := parseFileID(id)
	if !ok {
		return nil, serrors.ErrProductNotFound
	}
	var removed model.Product
	err := s.queue.Do(ctx, func() error {
		records, err := readCollection[fileProduct](s.productsPath)
		if err != nil {
			return err
		}
		idx := indexOfProduct(records, numID)
		if idx < 0 {
			return serrors.ErrProductNotFound
		}
		removed = records[idx].toModel()
		records = append(records[:idx], records[idx+1:]...)
		return writeCollection(s.productsPath, records)
	})
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

// DecrementStock re-checks every change against the file inside the queue and applies all or none.
func (s *FileStore) DecrementStock(ctx context.Context, changes []model.StockChange) error {
	return s.queue.Do(ctx, func() error {
		records, err := readCollection[fileProduct](s.productsPath)
		if err != nil {
			return err
		}
		byID := make(map[string]int, len(records))
		for i, r := range records {
			byID[strconv.FormatInt(r.ID, 10)] = i
		}
		merged := mergeChanges(changes)

		var shortages []serrors.StockShortage
		for _, c := range merged {
			available := 0
			if idx, ok := byID[c.ProductID]; ok {
				available = records[idx].Stock
			}
			if c.Quantity > available {
				shortages = append(shortages, serrors.StockShortage{ProductID: c.ProductID, Requested: c.Quantity, Available: available})
			}
		}
		if len(shortages) > 0 {
			return &serrors.InsufficientStockError{Lines: shortages}
		}

		now := s.now().UTC()
		for _, c := range merged {
			idx := byID[c.ProductID]
			records[idx].Stock -= c.Quantity
			records[idx].UpdatedAt = now
		}
		return writeCollection(s.productsPath, records)
	})
}

// ListCarts returns every cart in file order.
func (s *FileStore) ListCarts(_ context.Context) ([]model.Cart, error) {
	records, err := readCollection[fileCart](s.cartsPath)
	if err != nil {
		return nil, err
	}
	carts := make([]model.Cart, len(records))
	for i, r := range records {
		carts[i] = r.toModel()
	}
	return carts, nil
}

// FindCartByID retrieves a cart by its ID.
// Returns ErrCartNotFound if no cart exists with the given ID.
func (s *FileStore) FindCartByID(_ context.Context, id string) (*model.Cart, error) {
	numID, ok := parseFileID(id)
	if !ok {
		return nil, serrors.ErrCartNotFound
	}
	records, err := readCollection[fileCart](s.cartsPath)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.ID == numID {
			c := r.toModel()
			return &c, nil
		}
	}
	return nil, serrors.ErrCartNotFound
}

// CreateCart stores a new empty cart with id max(id)+1.
func (s *FileStore) CreateCart(ctx context.Context) (*model.Cart, error) {
	var created model.Cart
	err := s.queue.Do(ctx, func() error {
		records, err := readCollection[fileCart](s.cartsPath)
		if err != nil {
			return err
		}
		var maxID int64
		for _, r := range records {
			maxID = max(maxID, r.ID)
		}
		record, err := fromModelCart(model.NewCart(s.now().UTC()))
		if err != nil {
			return err
		}
		record.ID = maxID + 1
		if err := writeCollection(s.cartsPath, append(records, record)); err != nil {
			return err
		}
		created = record.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateCart applies mutate to the stored cart inside the queue.
func (s *FileStore) UpdateCart(ctx context.Context, id string, mutate CartMutator) (*model.Cart, error) {
	numID, ok := parseFileID(id)
	if !ok {
		return nil, serrors.ErrCartNotFound
	}
	var updated model.Cart
	err := s.queue.Do(ctx, func() error {
		records, err := readCollection[fileCart](s.cartsPath)
		if err != nil {
			return err
		}
		idx := -1
		for i, r := range records {
			if r.ID == numID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return serrors.ErrCartNotFound
		}
		current := records[idx].toModel()
		if err := mutate(&current); err != nil {
			return err
		}
		record, err := fromModelCart(current)
		if err != nil {
			return err
		}
		record.ID = records[idx].ID
		record.CreatedAt = records[idx].CreatedAt
		record.LastModified = s.now().UTC()
		records[idx] = record
		if err := writeCollection(s.cartsPath, records); err != nil {
			return err
		}
		updated = record.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Ping checks that both collections are readable.
func (s *FileStore) Ping(_ context.Context) error {
	if _, err := readCollection[fileProduct](s.productsPath); err != nil {
		return err
	}
	_, err := readCollection[fileCart](s.cartsPath)
	return err
}

// Close drains pending writes.
func (s *FileStore) Close(_ context.Context) error {
	s.queue.Close()
	return nil
}

func readCollection[T any](path string) ([]T, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []T{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("malformed JSON in %s: %w", path, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// writeCollection replaces the file through a temporary sibling and a rename,
// so that unqueued readers never observe a partial write.
func writeCollection[T any](path string, items []T) error {
	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func parseFileID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func nextProductID(records []fileProduct) int64 {
	var maxID int64
	for _, r := range records {
		maxID = max(maxID, r.ID)
	}
	return maxID + 1
}

func indexOfProduct(records []fileProduct, id int64) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// codeTaken reports whether code is used by a record other than the one at skip.
func codeTaken(records []fileProduct, code string, skip int) bool {
	for i, r := range records {
		if i != skip && r.Code == code {
			return true
		}
	}
	return false
}

func (r fileProduct) toModel() model.Product {
	thumbs := r.Thumbnails
	if thumbs == nil {
		thumbs = []string{}
	}
	return model.Product{
		ID:          strconv.FormatInt(r.ID, 10),
		Title:       r.Title,
		Description: r.Description,
		Code:        r.Code,
		Price:       r.Price,
		Stock:       r.Stock,
		Status:      r.Status,
		Category:    r.Category,
		Thumbnails:  thumbs,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func fromModelProduct(p model.Product) fileProduct {
	thumbs := p.Thumbnails
	if thumbs == nil {
		thumbs = []string{}
	}
	return fileProduct{
		Title:       p.Title,
		Description: p.Description,
		Code:        p.Code,
		Price:       p.Price,
		Stock:       p.Stock,
		Status:      p.Status,
		Category:    p.Category,
		Thumbnails:  thumbs,
	}
}

func (r fileCart) toModel() model.Cart {
	lines := make([]model.LineItem, len(r.Products))
	for i, l := range r.Products {
		lines[i] = model.LineItem{ProductID: strconv.FormatInt(l.Product, 10), Quantity: l.Quantity}
	}
	return model.Cart{
		ID:           strconv.FormatInt(r.ID, 10),
		Products:     lines,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		LastModified: r.LastModified,
	}
}

func fromModelCart(c model.Cart) (fileCart, error) {
	lines := make([]fileLine, len(c.Products))
	for i, l := range c.Products {
		pid, ok := parseFileID(l.ProductID)
		if !ok {
			return fileCart{}, fmt.Errorf("product %q: %w", l.ProductID, serrors.ErrProductNotFound)
		}
		lines[i] = fileLine{Product: pid, Quantity: l.Quantity}
	}
	return fileCart{
		Products:     lines,
		Status:       c.Status,
		CreatedAt:    c.CreatedAt,
		LastModified: c.LastModified,
	}, nil
}
