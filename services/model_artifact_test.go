package services

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCandidate(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("model-state"), 0644))
	return path
}

func TestModelArtifactStoreStartsEmpty(t *testing.T) {
	store := NewModelArtifactStore(t.TempDir(), func() Classifier { return &fakeClassifier{} })
	_, ok := store.Current()
	assert.False(t, ok)
}

func TestModelArtifactStorePublishVerifiesAndSwaps(t *testing.T) {
	dir := t.TempDir()
	store := NewModelArtifactStore(dir, func() Classifier { return &fakeClassifier{} })

	tmp := writeCandidate(t, dir, "candidate.tmp")
	artifact, err := store.Publish(tmp, []int{1, 2})
	require.NoError(t, err)
	assert.EqualValues(t, 1, artifact.Version)
	assert.Equal(t, []int{1, 2}, artifact.LabelIDs)

	current, ok := store.Current()
	require.True(t, ok)
	assert.Same(t, artifact, current)

	// the candidate was moved into a versioned location and the pointer written
	_, err = os.Stat(filepath.Join(dir, "model-v1.yml"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "current.json"))
	require.NoError(t, err)
	_, err = os.Stat(tmp)
	assert.True(t, os.IsNotExist(err))
}

func TestModelArtifactStoreVersionIsMonotonic(t *testing.T) {
	dir := t.TempDir()
	store := NewModelArtifactStore(dir, func() Classifier { return &fakeClassifier{} })

	first, err := store.Publish(writeCandidate(t, dir, "a.tmp"), []int{1})
	require.NoError(t, err)
	second, err := store.Publish(writeCandidate(t, dir, "b.tmp"), []int{1, 2})
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.Version)
	assert.EqualValues(t, 2, second.Version)

	// the previous version file survives the swap
	_, err = os.Stat(first.Path)
	require.NoError(t, err)
}

func TestModelArtifactStoreRejectsEmptyCandidate(t *testing.T) {
	dir := t.TempDir()
	store := NewModelArtifactStore(dir, func() Classifier { return &fakeClassifier{} })

	good, err := store.Publish(writeCandidate(t, dir, "good.tmp"), []int{1})
	require.NoError(t, err)

	empty := filepath.Join(dir, "empty.tmp")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = store.Publish(empty, []int{1})
	require.Error(t, err)

	// the published version is untouched and still servable
	current, ok := store.Current()
	require.True(t, ok)
	assert.Same(t, good, current)
}

func TestModelArtifactStoreFailedVerificationKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	loadErr := errors.New("corrupt model")
	calls := 0
	store := NewModelArtifactStore(dir, func() Classifier {
		calls++
		if calls > 1 {
			return &fakeClassifier{loadErr: loadErr}
		}
		return &fakeClassifier{}
	})

	good, err := store.Publish(writeCandidate(t, dir, "good.tmp"), []int{1})
	require.NoError(t, err)

	_, err = store.Publish(writeCandidate(t, dir, "bad.tmp"), []int{1})
	require.ErrorIs(t, err, loadErr)

	current, ok := store.Current()
	require.True(t, ok)
	assert.Same(t, good, current)
	assert.EqualValues(t, 1, current.Version)
}

func TestModelArtifactStoreLoadExisting(t *testing.T) {
	dir := t.TempDir()
	store := NewModelArtifactStore(dir, func() Classifier { return &fakeClassifier{} })
	published, err := store.Publish(writeCandidate(t, dir, "a.tmp"), []int{3})
	require.NoError(t, err)

	restored := NewModelArtifactStore(dir, func() Classifier { return &fakeClassifier{} })
	require.NoError(t, restored.LoadExisting())

	current, ok := restored.Current()
	require.True(t, ok)
	assert.Equal(t, published.Version, current.Version)
	assert.Equal(t, published.Path, current.Path)
	assert.Equal(t, []int{3}, current.LabelIDs)
	require.NotNil(t, current.Classifier)

	// publishing after a restore continues the version sequence
	next, err := restored.Publish(writeCandidate(t, dir, "b.tmp"), []int{3, 4})
	require.NoError(t, err)
	assert.EqualValues(t, 2, next.Version)
}

func TestModelArtifactStoreLoadExistingWithoutPointer(t *testing.T) {
	store := NewModelArtifactStore(t.TempDir(), func() Classifier { return &fakeClassifier{} })
	require.NoError(t, store.LoadExisting())
	_, ok := store.Current()
	assert.False(t, ok)
}
