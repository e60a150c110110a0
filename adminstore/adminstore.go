// Package adminstore is the gorm-backed registry of spaces, graphs, and
// users: the cross-tenant metadata that sits alongside the per-space
// primary-store schemas. It owns the install/space/graph/user tables and
// provides typed CRUD plus the race-tolerant auto-registration a graph
// needs the first time a write targets it.
package adminstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vitalgraph.io/model"
	"vitalgraph.io/security"
	"vitalgraph.io/vgerrors"
)

var log = logrus.WithField("component", "adminstore")

// Install is the single-row installation marker, recording when this
// VitalGraph instance's admin schema was first created.
type Install struct {
	ID               uint `gorm:"primaryKey"`
	InstallDatetime  time.Time
	UpdateDatetime   time.Time
	Active           bool
}

func (Install) TableName() string { return "install" }

// SpaceRow is the gorm model backing the space table.
type SpaceRow struct {
	SpaceID           string `gorm:"column:space_id;primaryKey"`
	SpaceName         string `gorm:"column:space_name"`
	SpaceDescription  string `gorm:"column:space_description"`
	Tenant            string `gorm:"column:tenant"`
	UpdateTime        time.Time `gorm:"column:update_time"`
}

func (SpaceRow) TableName() string { return "space" }

func (r SpaceRow) toSpace() model.Space {
	return model.Space{ID: r.SpaceID, Name: r.SpaceName, Description: r.SpaceDescription, Tenant: r.Tenant, UpdatedAt: r.UpdateTime}
}

// GraphRow is the gorm model backing the graph table.
type GraphRow struct {
	GraphID     int64 `gorm:"column:graph_id;primaryKey;autoIncrement"`
	SpaceID     string `gorm:"column:space_id"`
	GraphURI    string `gorm:"column:graph_uri"`
	GraphName   string `gorm:"column:graph_name"`
	CreatedTime time.Time `gorm:"column:created_time"`
}

func (GraphRow) TableName() string { return "graph" }

func (r GraphRow) toGraph() model.Graph {
	return model.Graph{ID: r.GraphID, SpaceID: r.SpaceID, URI: r.GraphURI, Name: r.GraphName, CreatedAt: r.CreatedTime}
}

// UserRow is the gorm model backing the user table ("user" is quoted
// because it collides with the SQL reserved word).
type UserRow struct {
	UserID     int64 `gorm:"column:user_id;primaryKey;autoIncrement"`
	Username   string `gorm:"column:username;unique"`
	Password   string `gorm:"column:password"`
	Email      string `gorm:"column:email"`
	Tenant     string `gorm:"column:tenant"`
	UpdateTime time.Time `gorm:"column:update_time"`
}

func (UserRow) TableName() string { return `"user"` }

// Store is the admin metadata registry.
type Store struct {
	db *gorm.DB
}

// New opens a gorm connection to the admin database and ensures the
// install/space/graph/user tables exist via AutoMigrate.
func New(connString string) (*Store, error) {
	gormLogger := logger.New(log, logger.Config{LogLevel: logger.Warn})
	db, err := gorm.Open(postgres.Open(connString), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, vgerrors.Wrap(vgerrors.PrimaryFailure, "opening admin database", err)
	}
	if err := db.AutoMigrate(&Install{}, &SpaceRow{}, &GraphRow{}, &UserRow{}); err != nil {
		return nil, vgerrors.Wrap(vgerrors.PrimaryFailure, "migrating admin schema", err)
	}
	return &Store{db: db}, nil
}

// EnsureInstalled writes the single install marker row the first time
// the admin schema is created, a no-op on subsequent starts.
func (s *Store) EnsureInstalled(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Install{}).Count(&count).Error; err != nil {
		return vgerrors.Wrap(vgerrors.PrimaryFailure, "checking install marker", err)
	}
	if count > 0 {
		return nil
	}
	now := time.Now()
	row := Install{InstallDatetime: now, UpdateDatetime: now, Active: true}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return vgerrors.Wrap(vgerrors.PrimaryFailure, "writing install marker", err)
	}
	return nil
}

// SpaceExists reports whether a space is registered.
func (s *Store) SpaceExists(ctx context.Context, spaceID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&SpaceRow{}).Where("space_id = ?", spaceID).Count(&count).Error
	if err != nil {
		return false, vgerrors.Wrap(vgerrors.PrimaryFailure, "checking space existence", err)
	}
	return count > 0, nil
}

// CreateSpace registers a new space.
func (s *Store) CreateSpace(ctx context.Context, space model.Space) error {
	row := SpaceRow{SpaceID: space.ID, SpaceName: space.Name, SpaceDescription: space.Description, Tenant: space.Tenant, UpdateTime: time.Now()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return vgerrors.Wrap(vgerrors.PrimaryFailure, "creating space "+space.ID, err)
	}
	return nil
}

// GetSpace fetches a registered space.
func (s *Store) GetSpace(ctx context.Context, spaceID string) (model.Space, error) {
	var row SpaceRow
	if err := s.db.WithContext(ctx).First(&row, "space_id = ?", spaceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Space{}, vgerrors.New(vgerrors.Malformed, "space not found: "+spaceID)
		}
		return model.Space{}, vgerrors.Wrap(vgerrors.PrimaryFailure, "fetching space "+spaceID, err)
	}
	return row.toSpace(), nil
}

// ListSpaces returns every registered space.
func (s *Store) ListSpaces(ctx context.Context) ([]model.Space, error) {
	var rows []SpaceRow
	if err := s.db.WithContext(ctx).Order("space_id").Find(&rows).Error; err != nil {
		return nil, vgerrors.Wrap(vgerrors.PrimaryFailure, "listing spaces", err)
	}
	spaces := make([]model.Space, len(rows))
	for i, r := range rows {
		spaces[i] = r.toSpace()
	}
	return spaces, nil
}

// DeleteSpace removes a space registration; the caller is responsible for
// dropping the space's primary-store schema and index dataset first.
func (s *Store) DeleteSpace(ctx context.Context, spaceID string) error {
	if err := s.db.WithContext(ctx).Delete(&SpaceRow{}, "space_id = ?", spaceID).Error; err != nil {
		return vgerrors.Wrap(vgerrors.PrimaryFailure, "deleting space "+spaceID, err)
	}
	return nil
}

// EnsureGraph registers a graph URI under a space if it isn't already
// known. Concurrent callers racing to register the same graph for the
// first time are tolerated: a unique-constraint violation on the losing
// side is treated as success, not an error, since the row they wanted
// now exists regardless of which goroutine wrote it.
func (s *Store) EnsureGraph(ctx context.Context, spaceID, graphURI string) error {
	var existing int64
	if err := s.db.WithContext(ctx).Model(&GraphRow{}).Where("space_id = ? AND graph_uri = ?", spaceID, graphURI).Count(&existing).Error; err != nil {
		return vgerrors.Wrap(vgerrors.PrimaryFailure, "checking graph registration", err)
	}
	if existing > 0 {
		return nil
	}

	row := GraphRow{SpaceID: spaceID, GraphURI: graphURI, GraphName: model.DeriveGraphName(graphURI), CreatedTime: time.Now()}
	err := s.db.WithContext(ctx).Create(&row).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		log.WithField("graph", graphURI).Debug("graph registered concurrently by another writer")
		return nil
	}
	return vgerrors.Wrap(vgerrors.PrimaryFailure, "registering graph "+graphURI, err)
}

// ListGraphs returns every graph registered under a space.
func (s *Store) ListGraphs(ctx context.Context, spaceID string) ([]model.Graph, error) {
	var rows []GraphRow
	if err := s.db.WithContext(ctx).Where("space_id = ?", spaceID).Order("graph_id").Find(&rows).Error; err != nil {
		return nil, vgerrors.Wrap(vgerrors.PrimaryFailure, "listing graphs for space "+spaceID, err)
	}
	graphs := make([]model.Graph, len(rows))
	for i, r := range rows {
		graphs[i] = r.toGraph()
	}
	return graphs, nil
}

// DeleteGraph removes a graph's registration.
func (s *Store) DeleteGraph(ctx context.Context, spaceID, graphURI string) error {
	if err := s.db.WithContext(ctx).Delete(&GraphRow{}, "space_id = ? AND graph_uri = ?", spaceID, graphURI).Error; err != nil {
		return vgerrors.Wrap(vgerrors.PrimaryFailure, "deleting graph "+graphURI, err)
	}
	return nil
}

// CreateUser hashes password with bcrypt and inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, username, password, email, tenant string) error {
	hash, err := security.HashPassword(password)
	if err != nil {
		return vgerrors.Wrap(vgerrors.Malformed, "hashing password", err)
	}
	row := UserRow{Username: username, Password: hash, Email: email, Tenant: tenant, UpdateTime: time.Now()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return vgerrors.Wrap(vgerrors.PrimaryFailure, "creating user "+username, err)
	}
	return nil
}

// VerifyUser checks a plaintext password against the stored bcrypt hash
// for username, returning (true, nil) on match.
func (s *Store) VerifyUser(ctx context.Context, username, password string) (bool, error) {
	var row UserRow
	if err := s.db.WithContext(ctx).First(&row, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, vgerrors.Wrap(vgerrors.PrimaryFailure, "fetching user "+username, err)
	}
	return security.VerifyPassword(row.Password, password) == nil, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "SQLSTATE 23505")
}
