package enrollment

import (
	"bytes"
	"context"
	"errors"
	"image"
	"testing"

	"face-gate-go/config"
	"face-gate-go/internal/core/models"
	"face-gate-go/internal/integrations/extractor"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo ist ein In-Memory-Repository mit schaltbaren Fehlern
type fakeRepo struct {
	users      map[string]*models.User
	images     []*models.UserImage
	embeddings []*models.FaceEmbedding

	failProfile   bool
	failImage     bool
	failEmbedding bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]*models.User)}
}

func (r *fakeRepo) UpsertUserByUsername(user *models.User) error {
	if r.failProfile {
		return errors.New("db down")
	}
	for _, existing := range r.users {
		if existing.Username == user.Username {
			user.ID = existing.ID
			r.users[existing.ID] = user
			return nil
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeRepo) GetUserByID(id string) (*models.User, error) {
	return r.users[id], nil
}

func (r *fakeRepo) SaveImage(img *models.UserImage) error {
	if r.failImage {
		return errors.New("db down")
	}
	if img.ID == "" {
		img.ID = uuid.NewString()
	}
	r.images = append(r.images, img)
	return nil
}

func (r *fakeRepo) SaveEmbedding(e *models.FaceEmbedding) error {
	if r.failEmbedding {
		return errors.New("db down")
	}
	r.embeddings = append(r.embeddings, e)
	return nil
}

// fakeStore sammelt Uploads im Speicher
type fakeStore struct {
	objects    map[string][]byte
	failUpload bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if s.failUpload {
		return errors.New("bucket unreachable")
	}
	s.objects[key] = data
	return nil
}

func (s *fakeStore) ResolveURL(ctx context.Context, key string) (string, error) {
	return "https://example.org/" + key, nil
}

func (s *fakeStore) Download(ctx context.Context, refOrKey string) ([]byte, error) {
	if data, ok := s.objects[refOrKey]; ok {
		return data, nil
	}
	return nil, errors.New("not found")
}

func (s *fakeStore) Remove(ctx context.Context, keys ...string) error { return nil }

// fakeExtractor liefert ein festes Template oder einen Fehler
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

func testImageBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func newTestService(repo *fakeRepo, store *fakeStore, ex Extractor) *Service {
	return NewService(repo, store, ex, nil, config.ExtractorConfig{Dimension: 3})
}

func stepStatus(t *testing.T, result *Result, step string) string {
	t.Helper()
	for _, s := range result.Steps {
		if s.Step == step {
			return s.Status
		}
	}
	t.Fatalf("step %s missing from result", step)
	return ""
}

func TestRegisterFullPipeline(t *testing.T) {
	repo := newFakeRepo()
	store := newFakeStore()
	svc := newTestService(repo, store, &fakeExtractor{vector: []float32{1, 2, 3}})

	result, err := svc.Register(context.Background(), RegisterInput{
		Username:     "anna",
		DisplayName:  "Anna Schmidt",
		ConsentTerms: true,
		ImageBytes:   testImageBytes(t),
	})
	require.NoError(t, err)

	assert.True(t, result.ProfileSaved)
	assert.NotEmpty(t, result.UserID)
	assert.Equal(t, StatusOK, stepStatus(t, result, StepProfile))
	assert.Equal(t, StatusOK, stepStatus(t, result, StepImage))
	assert.Equal(t, StatusOK, stepStatus(t, result, StepEmbedding))
	assert.Empty(t, result.Warnings)

	require.NotNil(t, result.Image)
	assert.Contains(t, result.Image.StoragePath, result.UserID+"/")
	assert.Len(t, repo.embeddings, 1)
	assert.Equal(t, models.EmbeddingSourceRegister, repo.embeddings[0].Source)
	assert.Len(t, store.objects, 1)
}

func TestRegisterWithoutImage(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeStore(), &fakeExtractor{})

	result, err := svc.Register(context.Background(), RegisterInput{
		Username:     "anna",
		DisplayName:  "Anna",
		ConsentTerms: true,
	})
	require.NoError(t, err)

	assert.True(t, result.ProfileSaved)
	assert.Equal(t, StatusSkipped, stepStatus(t, result, StepImage))
	assert.Equal(t, StatusSkipped, stepStatus(t, result, StepEmbedding))
}

func TestRegisterMissingFields(t *testing.T) {
	svc := newTestService(newFakeRepo(), newFakeStore(), &fakeExtractor{})

	_, err := svc.Register(context.Background(), RegisterInput{Username: "anna"})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestRegisterWithoutConsentRejectedBeforeAnyWrite(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeStore(), &fakeExtractor{vector: []float32{1}})

	_, err := svc.Register(context.Background(), RegisterInput{
		Username:    "anna",
		DisplayName: "Anna",
	})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Empty(t, repo.users)
}

func TestRegisterNoFaceKeepsProfileAndImage(t *testing.T) {
	repo := newFakeRepo()
	store := newFakeStore()
	svc := newTestService(repo, store, &fakeExtractor{err: extractor.ErrNoFaceDetected})

	result, err := svc.Register(context.Background(), RegisterInput{
		Username:     "anna",
		DisplayName:  "Anna",
		ConsentTerms: true,
		ImageBytes:   testImageBytes(t),
	})
	require.NoError(t, err)

	// Kein Gesicht: Profil und Bild bleiben bestehen, nur das Embedding fehlt
	assert.True(t, result.ProfileSaved)
	assert.Equal(t, StatusOK, stepStatus(t, result, StepImage))
	assert.Equal(t, StatusSkipped, stepStatus(t, result, StepEmbedding))
	assert.Contains(t, result.Warnings, "no face detected in image")
	assert.Len(t, store.objects, 1)
	assert.Empty(t, repo.embeddings)
}

func TestRegisterUploadFailureKeepsProfile(t *testing.T) {
	repo := newFakeRepo()
	store := newFakeStore()
	store.failUpload = true
	svc := newTestService(repo, store, &fakeExtractor{vector: []float32{1}})

	result, err := svc.Register(context.Background(), RegisterInput{
		Username:     "anna",
		DisplayName:  "Anna",
		ConsentTerms: true,
		ImageBytes:   testImageBytes(t),
	})
	require.NoError(t, err)

	assert.True(t, result.ProfileSaved)
	assert.Equal(t, StatusFailed, stepStatus(t, result, StepImage))
	assert.Equal(t, StatusSkipped, stepStatus(t, result, StepEmbedding))
	assert.Len(t, repo.users, 1)
}

func TestRegisterEmbeddingSaveFailureKeepsEarlierSteps(t *testing.T) {
	repo := newFakeRepo()
	repo.failEmbedding = true
	store := newFakeStore()
	svc := newTestService(repo, store, &fakeExtractor{vector: []float32{1}})

	result, err := svc.Register(context.Background(), RegisterInput{
		Username:     "anna",
		DisplayName:  "Anna",
		ConsentTerms: true,
		ImageBytes:   testImageBytes(t),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusOK, stepStatus(t, result, StepImage))
	assert.Equal(t, StatusFailed, stepStatus(t, result, StepEmbedding))
	assert.Len(t, store.objects, 1)
	assert.Len(t, repo.images, 1)
}

func TestRegisterBadImage(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeStore(), &fakeExtractor{vector: []float32{1}})

	result, err := svc.Register(context.Background(), RegisterInput{
		Username:     "anna",
		DisplayName:  "Anna",
		ConsentTerms: true,
		ImageBytes:   []byte("definitely not an image"),
	})
	require.NoError(t, err)

	assert.True(t, result.ProfileSaved)
	assert.Equal(t, StatusFailed, stepStatus(t, result, StepImage))
	assert.Equal(t, StatusSkipped, stepStatus(t, result, StepEmbedding))
}

func TestRegisterUpsertsExistingUsername(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeStore(), &fakeExtractor{vector: []float32{1}})

	first, err := svc.Register(context.Background(), RegisterInput{Username: "anna", DisplayName: "Anna", ConsentTerms: true})
	require.NoError(t, err)

	second, err := svc.Register(context.Background(), RegisterInput{Username: "anna", DisplayName: "Anna Schmidt", ConsentTerms: true})
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID)
	assert.Len(t, repo.users, 1)
}

func TestAttachImageUnknownUser(t *testing.T) {
	svc := newTestService(newFakeRepo(), newFakeStore(), &fakeExtractor{vector: []float32{1}})

	_, err := svc.AttachImage(context.Background(), uuid.NewString(), testImageBytes(t))
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestAttachImageStoresEmbedding(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeStore(), &fakeExtractor{vector: []float32{1, 2}})

	reg, err := svc.Register(context.Background(), RegisterInput{Username: "anna", DisplayName: "Anna", ConsentTerms: true})
	require.NoError(t, err)

	result, err := svc.AttachImage(context.Background(), reg.UserID, testImageBytes(t))
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, stepStatus(t, result, StepProfile))
	assert.Equal(t, StatusOK, stepStatus(t, result, StepEmbedding))
	require.Len(t, repo.embeddings, 1)
	assert.Equal(t, models.EmbeddingSourceAttach, repo.embeddings[0].Source)
}

func TestCaptureFaceCreatesProvisionalProfile(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeStore(), &fakeExtractor{vector: []float32{1}})

	result, err := svc.CaptureFace(context.Background(), testImageBytes(t))
	require.NoError(t, err)

	assert.True(t, result.Provisional)
	assert.Contains(t, result.Username, "temp_")
	assert.Equal(t, StatusOK, stepStatus(t, result, StepEmbedding))

	user := repo.users[result.UserID]
	require.NotNil(t, user)
	assert.True(t, user.Provisional)
}
