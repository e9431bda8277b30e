package matching

import (
	"context"
	"errors"
	"testing"

	"face-gate-go/config"
	"face-gate-go/internal/core/models"
	"face-gate-go/internal/db/vectorsearch"
	"face-gate-go/internal/integrations/extractor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	candidates []vectorsearch.Candidate
	err        error
	gotLimit   int
}

func (f *fakeSearcher) Nearest(ctx context.Context, vector []float32, limit int) ([]vectorsearch.Candidate, error) {
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.candidates) {
		return f.candidates[:limit], nil
	}
	return f.candidates, nil
}

func (f *fakeSearcher) Name() string { return "fake" }

type fakeRepo struct {
	users map[string]*models.User
}

func (r *fakeRepo) GetUserByID(id string) (*models.User, error) {
	return r.users[id], nil
}

type fakeExtractor struct {
	vector []float32
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, imageBytes []byte, source string) (*extractor.TemplateResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &extractor.TemplateResult{Vector: f.vector}, nil
}

func newTestService(searcher vectorsearch.NearestSearcher, users map[string]*models.User) *Service {
	return NewService(
		&fakeRepo{users: users},
		searcher,
		&fakeExtractor{vector: []float32{1, 2, 3}},
		nil,
		config.MatchingConfig{Threshold: 0.5, Limit: 1},
	)
}

func TestMatchBelowThreshold(t *testing.T) {
	users := map[string]*models.User{
		"u-1": {ID: "u-1", Username: "anna", DisplayName: "Anna"},
	}
	searcher := &fakeSearcher{candidates: []vectorsearch.Candidate{
		{EmbeddingID: "e-1", UserID: "u-1", Distance: 0.3},
	}}

	result, err := newTestService(searcher, users).Match(context.Background(), []byte("img"), Options{})
	require.NoError(t, err)

	assert.True(t, result.Matched)
	require.NotNil(t, result.User)
	assert.Equal(t, "anna", result.User.Username)
	assert.Equal(t, 0.3, result.Distance)
}

func TestMatchExactlyAtThresholdIsNoMatch(t *testing.T) {
	users := map[string]*models.User{
		"u-1": {ID: "u-1", Username: "anna", DisplayName: "Anna"},
	}
	searcher := &fakeSearcher{candidates: []vectorsearch.Candidate{
		{EmbeddingID: "e-1", UserID: "u-1", Distance: 0.5},
	}}

	result, err := newTestService(searcher, users).Match(context.Background(), []byte("img"), Options{})
	require.NoError(t, err)

	// Distanz == Schwelle zählt nicht als Treffer
	assert.False(t, result.Matched)
	assert.Nil(t, result.User)
	assert.Equal(t, 0.5, result.Distance)
}

func TestMatchEmptyDatabase(t *testing.T) {
	result, err := newTestService(&fakeSearcher{}, nil).Match(context.Background(), []byte("img"), Options{})
	require.NoError(t, err)

	assert.False(t, result.Matched)
	assert.Zero(t, result.Distance)
}

func TestMatchNoFacePassesThrough(t *testing.T) {
	svc := NewService(&fakeRepo{}, &fakeSearcher{}, &fakeExtractor{err: extractor.ErrNoFaceDetected}, nil,
		config.MatchingConfig{Threshold: 0.5, Limit: 1})

	_, err := svc.Match(context.Background(), []byte("img"), Options{})
	assert.ErrorIs(t, err, extractor.ErrNoFaceDetected)
}

func TestMatchSearchUnsupportedPassesThrough(t *testing.T) {
	searcher := &fakeSearcher{err: vectorsearch.ErrSearchUnsupported}

	_, err := newTestService(searcher, nil).Match(context.Background(), []byte("img"), Options{})
	assert.ErrorIs(t, err, vectorsearch.ErrSearchUnsupported)
}

func TestMatchOrphanedEmbedding(t *testing.T) {
	// Das nächste Embedding gehört zu einem gelöschten Benutzer
	searcher := &fakeSearcher{candidates: []vectorsearch.Candidate{
		{EmbeddingID: "e-1", UserID: "u-gone", Distance: 0.1},
	}}

	result, err := newTestService(searcher, map[string]*models.User{}).Match(context.Background(), []byte("img"), Options{})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestMatchVectorIdenticalVector(t *testing.T) {
	users := map[string]*models.User{
		"u-1": {ID: "u-1", Username: "anna", DisplayName: "Anna"},
	}
	searcher := &fakeSearcher{candidates: []vectorsearch.Candidate{
		{EmbeddingID: "e-1", UserID: "u-1", Distance: 0},
	}}

	result, err := newTestService(searcher, users).MatchVector(context.Background(), []float32{1, 2, 3}, Options{})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Zero(t, result.Distance)
}

func TestMatchThresholdOverride(t *testing.T) {
	users := map[string]*models.User{
		"u-1": {ID: "u-1", Username: "anna", DisplayName: "Anna"},
	}
	searcher := &fakeSearcher{candidates: []vectorsearch.Candidate{
		{EmbeddingID: "e-1", UserID: "u-1", Distance: 0.3},
	}}

	// Eine strengere Schwelle pro Aufruf macht aus dem Treffer einen Nicht-Treffer
	result, err := newTestService(searcher, users).Match(context.Background(), []byte("img"), Options{Threshold: 0.2})
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, 0.2, result.Threshold)

	// Eine großzügigere Schwelle akzeptiert Kandidaten über der Vorgabe
	searcher.candidates[0].Distance = 0.6
	result, err = newTestService(searcher, users).Match(context.Background(), []byte("img"), Options{Threshold: 0.7})
	require.NoError(t, err)
	assert.True(t, result.Matched)
}

func TestMatchLimitOverride(t *testing.T) {
	searcher := &fakeSearcher{}

	_, err := newTestService(searcher, nil).Match(context.Background(), []byte("img"), Options{Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, searcher.gotLimit)

	// Ohne Übersteuerung gilt der konfigurierte Wert
	_, err = newTestService(searcher, nil).Match(context.Background(), []byte("img"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, searcher.gotLimit)
}

func TestMatchSearcherErrorWrapped(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("connection reset")}

	_, err := newTestService(searcher, nil).Match(context.Background(), []byte("img"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nearest-neighbour search failed")
}
