package adminstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpaceRow_ToSpaceMapsAllFields(t *testing.T) {
	now := time.Now()
	row := SpaceRow{SpaceID: "s1", SpaceName: "Space One", SpaceDescription: "desc", Tenant: "t1", UpdateTime: now}
	space := row.toSpace()
	assert.Equal(t, "s1", space.ID)
	assert.Equal(t, "Space One", space.Name)
	assert.Equal(t, "desc", space.Description)
	assert.Equal(t, "t1", space.Tenant)
	assert.Equal(t, now, space.UpdatedAt)
}

func TestGraphRow_ToGraphMapsAllFields(t *testing.T) {
	now := time.Now()
	row := GraphRow{GraphID: 5, SpaceID: "s1", GraphURI: "http://example.org/g1", GraphName: "g1", CreatedTime: now}
	graph := row.toGraph()
	assert.Equal(t, int64(5), graph.ID)
	assert.Equal(t, "s1", graph.SpaceID)
	assert.Equal(t, "http://example.org/g1", graph.URI)
	assert.Equal(t, "g1", graph.Name)
	assert.Equal(t, now, graph.CreatedAt)
}

func TestIsUniqueViolation_DetectsPostgresDuplicateKeyMessage(t *testing.T) {
	err := assertErr("ERROR: duplicate key value violates unique constraint \"graph_space_id_graph_uri_key\" (SQLSTATE 23505)")
	assert.True(t, isUniqueViolation(err))
}

func TestIsUniqueViolation_FalseForUnrelatedError(t *testing.T) {
	err := assertErr("connection refused")
	assert.False(t, isUniqueViolation(err))
}

func TestIsUniqueViolation_NilIsFalse(t *testing.T) {
	assert.False(t, isUniqueViolation(nil))
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
