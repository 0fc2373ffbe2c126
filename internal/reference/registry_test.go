package reference

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/stageflow/internal/store"
)

// failingStore errors on every operation, simulating a store outage.
type failingStore struct{}

func (failingStore) Put(context.Context, string, string, any) error {
	return errors.New("store unreachable")
}

func (failingStore) Get(context.Context, string, string) (json.RawMessage, error) {
	return nil, errors.New("store unreachable")
}

func (failingStore) GetAll(context.Context, string) (map[string]json.RawMessage, error) {
	return nil, errors.New("store unreachable")
}

func testReference() *Reference {
	return &Reference{
		SourceMode:     "design",
		SourceArtifact: "spec",
		TargetMode:     "build",
		TargetArtifact: "binary",
		Type:           TypeImplements,
	}
}

func TestNewRegistry_RequiresStore(t *testing.T) {
	_, err := NewRegistry(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store is required")
}

func TestCreate_ValidatesKeyFields(t *testing.T) {
	reg, err := NewRegistry(store.NewMemory(), nil)
	require.NoError(t, err)

	ref := testReference()
	ref.SourceArtifact = ""
	_, _, err = reg.Create(context.Background(), ref)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "source_artifact")

	_, _, err = reg.Create(context.Background(), nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreate_RejectsUnknownType(t *testing.T) {
	reg, err := NewRegistry(store.NewMemory(), nil)
	require.NoError(t, err)

	ref := testReference()
	ref.Type = "invents"
	_, _, err = reg.Create(context.Background(), ref)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "unknown reference type")
}

func TestCreate_ReturnsCompositeKeyAndEcho(t *testing.T) {
	reg, err := NewRegistry(store.NewMemory(), nil)
	require.NoError(t, err)

	key, echo, err := reg.Create(context.Background(), testReference())
	require.NoError(t, err)

	assert.Equal(t, "design_spec_implements_build_binary", key)
	require.NotNil(t, echo)
	assert.Equal(t, "design", echo.SourceMode)
	assert.False(t, echo.CreatedAt.IsZero())
}

func TestCreate_IdempotentForIdenticalFields(t *testing.T) {
	mem := store.NewMemory()
	reg, err := NewRegistry(mem, nil)
	require.NoError(t, err)
	ctx := context.Background()

	k1, _, err := reg.Create(ctx, testReference())
	require.NoError(t, err)
	k2, _, err := reg.Create(ctx, testReference())
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Equal(t, 1, mem.Len(store.CategoryReferences))

	// Retrievable from either endpoint.
	asSource := reg.Get(ctx, Query{Mode: "design", Artifact: "spec", AsSource: true})
	require.Len(t, asSource, 1)
	asTarget := reg.Get(ctx, Query{Mode: "build", Artifact: "binary"})
	require.Len(t, asTarget, 1)
	assert.Equal(t, asSource[0].Key(), asTarget[0].Key())
}

func TestGet_FiltersByRoleArtifactAndType(t *testing.T) {
	reg, err := NewRegistry(store.NewMemory(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = reg.Create(ctx, testReference())
	require.NoError(t, err)

	docRef := testReference()
	docRef.TargetMode = "docs"
	docRef.TargetArtifact = "manual"
	docRef.Type = TypeDocuments
	_, _, err = reg.Create(ctx, docRef)
	require.NoError(t, err)

	all := reg.Get(ctx, Query{Mode: "design", AsSource: true})
	assert.Len(t, all, 2)

	implOnly := reg.Get(ctx, Query{Mode: "design", AsSource: true, Type: TypeImplements})
	require.Len(t, implOnly, 1)
	assert.Equal(t, TypeImplements, implOnly[0].Type)

	byArtifact := reg.Get(ctx, Query{Mode: "docs", Artifact: "manual"})
	require.Len(t, byArtifact, 1)
	assert.Equal(t, "manual", byArtifact[0].TargetArtifact)

	none := reg.Get(ctx, Query{Mode: "debug", AsSource: true})
	assert.Empty(t, none)
}

func TestGet_EmptyOnStoreOutage(t *testing.T) {
	reg, err := NewRegistry(failingStore{}, nil)
	require.NoError(t, err)

	refs := reg.Get(context.Background(), Query{Mode: "design", AsSource: true})
	assert.NotNil(t, refs)
	assert.Empty(t, refs)
}

func TestCreate_SurfacesStoreError(t *testing.T) {
	reg, err := NewRegistry(failingStore{}, nil)
	require.NoError(t, err)

	_, _, err = reg.Create(context.Background(), testReference())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestQuery_Matches(t *testing.T) {
	ref := testReference()

	assert.True(t, Query{Mode: "design", AsSource: true}.Matches(ref))
	assert.True(t, Query{Mode: "build"}.Matches(ref))
	assert.False(t, Query{Mode: "design"}.Matches(ref))
	assert.False(t, Query{Mode: "design", Artifact: "other", AsSource: true}.Matches(ref))
	assert.False(t, Query{Mode: "design", AsSource: true, Type: TypeDocuments}.Matches(ref))
}
