package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mksu-dev/clearance-api/internal/dto"
	"github.com/mksu-dev/clearance-api/internal/models"
	"github.com/mksu-dev/clearance-api/internal/repository"
	appErrors "github.com/mksu-dev/clearance-api/pkg/errors"
)

type departmentStoreStub struct {
	active      []models.Department
	codes       map[string]bool
	listCalls   int
	created     []*models.Department
	deactivated []string
}

func (s *departmentStoreStub) ListActiveOrdered(ctx context.Context) ([]models.Department, error) {
	s.listCalls++
	return s.active, nil
}

func (s *departmentStoreStub) CountActive(ctx context.Context) (int, error) {
	return len(s.active), nil
}

func (s *departmentStoreStub) List(ctx context.Context, filter models.DepartmentFilter) ([]models.Department, int, error) {
	return s.active, len(s.active), nil
}

func (s *departmentStoreStub) FindByID(ctx context.Context, id string) (*models.Department, error) {
	for i := range s.active {
		if s.active[i].ID == id {
			return &s.active[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *departmentStoreStub) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	return s.codes[code], nil
}

func (s *departmentStoreStub) Create(ctx context.Context, department *models.Department) error {
	department.ID = "dept-new"
	s.created = append(s.created, department)
	return nil
}

func (s *departmentStoreStub) Update(ctx context.Context, department *models.Department) error {
	return nil
}

func (s *departmentStoreStub) Deactivate(ctx context.Context, id string) error {
	s.deactivated = append(s.deactivated, id)
	return nil
}

// memoryCache mimics the redis-backed cache contract, including the miss
// sentinel and JSON round-tripping.
type memoryCache struct {
	entries map[string][]byte
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	delete(c.entries, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, FullName: "Registrar"}
}

func TestDepartmentServiceActiveSequenceCachesRegistry(t *testing.T) {
	store := &departmentStoreStub{active: []models.Department{
		{ID: "dept-1", Name: "Finance", ApprovalOrder: 1},
		{ID: "dept-2", Name: "Library", ApprovalOrder: 2},
	}}
	cache := newMemoryCache()
	svc := NewDepartmentService(store, cache, time.Minute, nil, nil, zap.NewNop())

	first, err := svc.ActiveSequence(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := svc.ActiveSequence(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.listCalls, "second read should be served from cache")
}

func TestDepartmentServiceCreateInvalidatesRegistry(t *testing.T) {
	store := &departmentStoreStub{codes: map[string]bool{}}
	cache := newMemoryCache()
	cache.entries[repository.CacheKeyRegistry] = []byte(`[]`)
	audit := &auditStub{}
	svc := NewDepartmentService(store, cache, time.Minute, audit, nil, zap.NewNop())

	department, err := svc.Create(context.Background(), dto.CreateDepartmentRequest{
		Name:          "University Library",
		Code:          "LIB",
		Type:          models.DepartmentTypeLibrary,
		HeadEmail:     "librarian@mksu.ac.ke",
		ApprovalOrder: 3,
	}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, "dept-new", department.ID)
	assert.True(t, department.Active)
	assert.Contains(t, cache.deleted, repository.CacheKeyRegistry)
	require.Len(t, audit.intents, 1)
	assert.Equal(t, models.AuditActionCreate, audit.intents[0].Action)
}

func TestDepartmentServiceCreateDuplicateCode(t *testing.T) {
	store := &departmentStoreStub{codes: map[string]bool{"LIB": true}}
	svc := NewDepartmentService(store, nil, time.Minute, nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), dto.CreateDepartmentRequest{
		Name:          "University Library",
		Code:          "LIB",
		Type:          models.DepartmentTypeLibrary,
		HeadEmail:     "librarian@mksu.ac.ke",
		ApprovalOrder: 3,
	}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.created)
}

func TestDepartmentServiceDeactivateInvalidatesRegistry(t *testing.T) {
	store := &departmentStoreStub{active: []models.Department{
		{ID: "dept-1", Name: "Finance", ApprovalOrder: 1},
	}}
	cache := newMemoryCache()
	svc := NewDepartmentService(store, cache, time.Minute, nil, nil, zap.NewNop())

	require.NoError(t, svc.Deactivate(context.Background(), "dept-1", adminClaims()))
	assert.Equal(t, []string{"dept-1"}, store.deactivated)
	assert.Contains(t, cache.deleted, repository.CacheKeyRegistry)
}
