package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/diarylock/internal/crypto"
	"github.com/illarion/diarylock/internal/payload"
	"github.com/illarion/diarylock/internal/storage"
)

const goodPassword = "Correct-Horse9!"

var fastParams = crypto.Params{
	Version:       crypto.DefaultVersion,
	Algorithm:     crypto.AlgorithmPBKDF2SHA256,
	Iterations:    1000,
	KeyLengthBits: 256,
}

// faultyStore wraps a Storage and fails selected calls
type faultyStore struct {
	storage.Storage

	mu             sync.Mutex
	failSaveLock   bool
	failSavePageAt int // 1-based call number to fail, 0 disables
	savePageCalls  int
}

var errInjected = errors.New("injected storage failure")

func (f *faultyStore) SaveLock(ctx context.Context, r *storage.LockRecord) error {
	f.mu.Lock()
	fail := f.failSaveLock
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.Storage.SaveLock(ctx, r)
}

func (f *faultyStore) SavePage(ctx context.Context, p *storage.Page) error {
	f.mu.Lock()
	f.savePageCalls++
	fail := f.failSavePageAt != 0 && f.savePageCalls == f.failSavePageAt
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.Storage.SavePage(ctx, p)
}

func (f *faultyStore) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSaveLock = false
	f.failSavePageAt = 0
	f.savePageCalls = 0
}

func newTestStore(t *testing.T) *faultyStore {
	t.Helper()
	db, err := storage.OpenBolt(filepath.Join(t.TempDir(), "test.diarylock"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &faultyStore{Storage: db}
}

func newSQLiteTestStore(t *testing.T) *faultyStore {
	t.Helper()
	db, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &faultyStore{Storage: db}
}

// testStores returns one fresh store per backend that runs without a server
func testStores(t *testing.T) map[string]*faultyStore {
	t.Helper()
	return map[string]*faultyStore{
		"bolt":   newTestStore(t),
		"sqlite": newSQLiteTestStore(t),
	}
}

func newTestCoordinator(t *testing.T, store storage.Storage) *Coordinator {
	t.Helper()
	c, err := New(store, WithParams(fastParams))
	require.NoError(t, err)
	return c
}

func seedPages(t *testing.T, store storage.Storage, diaryID string) []storage.Page {
	t.Helper()
	pages := []storage.Page{
		{
			ID:        "p1",
			DiaryID:   diaryID,
			Title:     "Monday",
			Document:  []byte(`{"type":"doc","content":[{"type":"text","text":"dear diary"}]}`),
			CreatedAt: 1700000000000,
			UpdatedAt: 1700000000500,
		},
		{
			ID:        "p2",
			DiaryID:   diaryID,
			Title:     "Sketch",
			Document:  []byte("  spaced   content\n"),
			Scene:     []byte{0x00, 0x01, 0xfe, 0xff},
			CreatedAt: 1700000001000,
			UpdatedAt: 1700000001500,
		},
	}
	for i := range pages {
		require.NoError(t, store.SavePage(context.Background(), &pages[i]))
	}
	return pages
}

func loadPages(t *testing.T, store storage.Storage, diaryID string) []storage.Page {
	t.Helper()
	pages, err := store.LoadPages(context.Background(), diaryID)
	require.NoError(t, err)
	return pages
}

func loadRecord(t *testing.T, store storage.Storage, diaryID string) *storage.LockRecord {
	t.Helper()
	rec, err := store.LoadLock(context.Background(), diaryID)
	require.NoError(t, err)
	return rec
}

func TestLockUnlockRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	original := seedPages(t, store, "d1")

	require.NoError(t, c.LockDiary(ctx, "d1", []byte(goodPassword)))

	rec := loadRecord(t, store, "d1")
	require.NotNil(t, rec)
	assert.True(t, rec.Locked)
	require.NotNil(t, rec.Payload)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, fastParams, rec.KDF)

	bundle, err := payload.Decode(*rec.Payload)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, bundle.PageIDs())

	for _, p := range loadPages(t, store, "d1") {
		assert.False(t, p.HasContent(), "page %s should be sanitized", p.ID)
		assert.NotEmpty(t, p.Title, "metadata survives sanitization")
	}

	require.NoError(t, c.UnlockDiary(ctx, "d1", []byte(goodPassword)))

	rec = loadRecord(t, store, "d1")
	require.NotNil(t, rec)
	assert.False(t, rec.Locked)
	assert.Nil(t, rec.Payload)
	assert.Equal(t, original, loadPages(t, store, "d1"))
}

func TestLockReusesRecordAcrossCycles(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	seedPages(t, store, "d1")

	require.NoError(t, c.LockDiary(ctx, "d1", []byte(goodPassword)))
	first := loadRecord(t, store, "d1")
	require.NoError(t, c.UnlockDiary(ctx, "d1", []byte(goodPassword)))

	require.NoError(t, c.LockDiary(ctx, "d1", []byte("Another-Pass-42")))
	second := loadRecord(t, store, "d1")

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.NotEqual(t, first.Salt, second.Salt)

	assert.ErrorIs(t, c.UnlockDiary(ctx, "d1", []byte(goodPassword)), ErrWrongPassword)
	require.NoError(t, c.UnlockDiary(ctx, "d1", []byte("Another-Pass-42")))
}

func TestUnlockWrongPasswordLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	seedPages(t, store, "d1")
	require.NoError(t, c.LockDiary(ctx, "d1", []byte(goodPassword)))
	before := loadRecord(t, store, "d1")

	err := c.UnlockDiary(ctx, "d1", []byte("wrong"))
	require.ErrorIs(t, err, ErrWrongPassword)

	after := loadRecord(t, store, "d1")
	assert.True(t, after.Locked)
	assert.Equal(t, before, after)
	for _, p := range loadPages(t, store, "d1") {
		assert.False(t, p.HasContent())
	}
}

func TestLockRejectsWeakPasswordWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	original := seedPages(t, store, "d1")

	for _, pw := range []string{"", "abcdef", "abcdefGH12"} {
		err := c.LockDiary(ctx, "d1", []byte(pw))
		require.ErrorIs(t, err, ErrValidation, "password %q", pw)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	}

	assert.Nil(t, loadRecord(t, store, "d1"))
	assert.Equal(t, original, loadPages(t, store, "d1"))
}

func TestValidationFeedback(t *testing.T) {
	err := ValidatePassword([]byte("abcdef"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password is too weak", verr.Reason)
	assert.Contains(t, verr.Feedback, "Use at least 8 characters")
	assert.Contains(t, err.Error(), "Add numbers")
}

func TestStateGuards(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	seedPages(t, store, "d1")

	assert.ErrorIs(t, c.UnlockDiary(ctx, "d1", []byte(goodPassword)), ErrNotLocked)

	require.NoError(t, c.LockDiary(ctx, "d1", []byte(goodPassword)))
	assert.ErrorIs(t, c.LockDiary(ctx, "d1", []byte(goodPassword)), ErrAlreadyLocked)

	require.NoError(t, c.UnlockDiary(ctx, "d1", []byte(goodPassword)))
	assert.ErrorIs(t, c.UnlockDiary(ctx, "d1", []byte(goodPassword)), ErrNotLocked)
}

func TestEmptyDiaryID(t *testing.T) {
	c := newTestCoordinator(t, newTestStore(t))
	ctx := context.Background()

	assert.ErrorIs(t, c.LockDiary(ctx, " ", []byte(goodPassword)), ErrValidation)
	assert.ErrorIs(t, c.UnlockDiary(ctx, "", []byte(goodPassword)), ErrValidation)
	assert.ErrorIs(t, c.ClearLock(ctx, ""), ErrValidation)
}

func TestLockEmptyDiary(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)

	require.NoError(t, c.LockDiary(ctx, "empty", []byte(goodPassword)))
	rec := loadRecord(t, store, "empty")
	require.NotNil(t, rec.Payload)
	assert.JSONEq(t, `{"pages":[]}`, *rec.Payload)

	require.NoError(t, c.UnlockDiary(ctx, "empty", []byte(goodPassword)))
}

func TestUnlockCorruptedPayload(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	seedPages(t, store, "d1")
	require.NoError(t, c.LockDiary(ctx, "d1", []byte(goodPassword)))

	rec := loadRecord(t, store, "d1")
	broken := `{"entries":"nope"}`
	rec.Payload = &broken
	require.NoError(t, store.SaveLock(ctx, rec))

	err := c.UnlockDiary(ctx, "d1", []byte(goodPassword))
	require.ErrorIs(t, err, ErrPayloadCorrupted)
	assert.NotErrorIs(t, err, ErrWrongPassword)

	assert.True(t, loadRecord(t, store, "d1").Locked)
	for _, p := range loadPages(t, store, "d1") {
		assert.False(t, p.HasContent())
	}
}

func TestUnlockTamperedCiphertextRestoresNothing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	seedPages(t, store, "d1")
	require.NoError(t, c.LockDiary(ctx, "d1", []byte(goodPassword)))

	// Damage only the second entry so the first decrypts fine
	rec := loadRecord(t, store, "d1")
	bundle, err := payload.Decode(*rec.Payload)
	require.NoError(t, err)
	entry := bundle.Find("p2")
	require.NotNil(t, entry)
	entry.Data.Ciphertext[0] ^= 0xff
	encoded, err := payload.Encode(bundle)
	require.NoError(t, err)
	rec.Payload = &encoded
	require.NoError(t, store.SaveLock(ctx, rec))

	err = c.UnlockDiary(ctx, "d1", []byte(goodPassword))
	require.ErrorIs(t, err, ErrWrongPassword)

	assert.True(t, loadRecord(t, store, "d1").Locked)
	for _, p := range loadPages(t, store, "d1") {
		assert.False(t, p.HasContent(), "page %s must not be restored", p.ID)
	}
}

func TestClearLock(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	seedPages(t, store, "d1")

	// Nothing to clear
	require.NoError(t, c.ClearLock(ctx, "d1"))

	require.NoError(t, c.LockDiary(ctx, "d1", []byte(goodPassword)))
	pagesBefore := loadPages(t, store, "d1")

	require.NoError(t, c.ClearLock(ctx, "d1"))
	assert.Nil(t, loadRecord(t, store, "d1"))
	assert.Equal(t, pagesBefore, loadPages(t, store, "d1"))

	// Cleared diaries are Unlocked again
	assert.ErrorIs(t, c.UnlockDiary(ctx, "d1", []byte(goodPassword)), ErrNotLocked)
}

func TestStalePayloadIsNormalized(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	original := seedPages(t, store, "d1")

	stale := `{"pages":[]}`
	require.NoError(t, store.SaveLock(ctx, &storage.LockRecord{
		ID:           "stale",
		DiaryID:      "d1",
		Locked:       false,
		Salt:         []byte{1},
		PasswordHash: []byte{2},
		KDF:          fastParams,
		Payload:      &stale,
	}))

	assert.ErrorIs(t, c.UnlockDiary(ctx, "d1", []byte(goodPassword)), ErrNotLocked)
	rec := loadRecord(t, store, "d1")
	assert.Nil(t, rec.Payload)
	assert.Equal(t, original, loadPages(t, store, "d1"))

	// Locking afterwards reuses the record
	require.NoError(t, c.LockDiary(ctx, "d1", []byte(goodPassword)))
	assert.Equal(t, "stale", loadRecord(t, store, "d1").ID)
}

func TestLockSaveRecordFailureLeavesPagesIntact(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	original := seedPages(t, store, "d1")

	store.failSaveLock = true
	err := c.LockDiary(ctx, "d1", []byte(goodPassword))
	require.ErrorIs(t, err, errInjected)

	assert.Nil(t, loadRecord(t, store, "d1"))
	assert.Equal(t, original, loadPages(t, store, "d1"))
}

func TestInterruptedSanitizationIsRecoverable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	original := seedPages(t, store, "d1")

	// Second page write fails: p1 sanitized, p2 still has content
	store.reset()
	store.failSavePageAt = 2
	err := c.LockDiary(ctx, "d1", []byte(goodPassword))
	require.ErrorIs(t, err, errInjected)
	store.reset()

	rec := loadRecord(t, store, "d1")
	require.NotNil(t, rec)
	assert.True(t, rec.Locked)

	status, err := c.Status(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, status.NeedsRecovery)
	assert.Equal(t, 1, status.WithContent)
	assert.Equal(t, 2, status.EncryptedPages)

	n, err := c.Recover(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Idempotent
	n, err = c.Recover(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	status, err = c.Status(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, status.NeedsRecovery)

	require.NoError(t, c.UnlockDiary(ctx, "d1", []byte(goodPassword)))
	assert.Equal(t, original, loadPages(t, store, "d1"))
}

func TestUnlockRestoreFailureCanBeRetried(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	original := seedPages(t, store, "d1")
	require.NoError(t, c.LockDiary(ctx, "d1", []byte(goodPassword)))
	store.reset()

	store.failSavePageAt = 2
	require.ErrorIs(t, c.UnlockDiary(ctx, "d1", []byte(goodPassword)), errInjected)
	store.reset()

	// Payload is intact so the retry starts from scratch
	assert.True(t, loadRecord(t, store, "d1").Locked)
	require.NoError(t, c.UnlockDiary(ctx, "d1", []byte(goodPassword)))
	assert.Equal(t, original, loadPages(t, store, "d1"))
}

func TestRecoverRequiresLockedDiary(t *testing.T) {
	c := newTestCoordinator(t, newTestStore(t))
	_, err := c.Recover(context.Background(), "d1")
	assert.ErrorIs(t, err, ErrNotLocked)
}

func TestCancelledContextBeforeLock(t *testing.T) {
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	original := seedPages(t, store, "d1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, c.LockDiary(ctx, "d1", []byte(goodPassword)), context.Canceled)
	assert.Nil(t, loadRecord(t, store, "d1"))
	assert.Equal(t, original, loadPages(t, store, "d1"))
}

func TestPersistedParamsOutliveDefaults(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	original := seedPages(t, store, "d1")

	c1 := newTestCoordinator(t, store)
	require.NoError(t, c1.LockDiary(ctx, "d1", []byte(goodPassword)))

	upgraded := fastParams
	upgraded.Version = 2
	upgraded.Iterations = 2000
	c2, err := New(store, WithParams(upgraded))
	require.NoError(t, err)

	require.NoError(t, c2.UnlockDiary(ctx, "d1", []byte(goodPassword)))
	assert.Equal(t, original, loadPages(t, store, "d1"))

	require.NoError(t, c2.LockDiary(ctx, "d1", []byte(goodPassword)))
	assert.Equal(t, upgraded, loadRecord(t, store, "d1").KDF)
}

func TestNewRejectsInvalidParams(t *testing.T) {
	_, err := New(newTestStore(t), WithParams(crypto.Params{Algorithm: "md5"}))
	assert.ErrorIs(t, err, crypto.ErrInvalidParams)
}

func TestConcurrentLockSameDiary(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	seedPages(t, store, "d1")

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.LockDiary(ctx, "d1", []byte(goodPassword))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyLocked)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, c.locks.len())

	require.NoError(t, c.UnlockDiary(ctx, "d1", []byte(goodPassword)))
}

func TestConcurrentDifferentDiaries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)

	diaries := []string{"a", "b", "c", "d"}
	originals := map[string][]storage.Page{}
	for _, id := range diaries {
		originals[id] = seedPages(t, store, id)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(diaries))
	for _, id := range diaries {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := c.LockDiary(ctx, id, []byte(goodPassword)); err != nil {
				errs <- err
				return
			}
			errs <- c.UnlockDiary(ctx, id, []byte(goodPassword))
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for _, id := range diaries {
		assert.Equal(t, originals[id], loadPages(t, store, id))
	}
}

func TestLockUnlockRoundTripPerBackend(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := newTestCoordinator(t, store)

			original := seedPages(t, store, "d1")
			extra := storage.Page{
				ID:        "p3",
				DiaryID:   "d1",
				Title:     "caf\u00e9 \u65e5\u8a18",
				Document:  []byte("caf\xe9 raw bytes"),
				CreatedAt: 1700000002000,
				UpdatedAt: 1700000002500,
			}
			require.NoError(t, store.SavePage(ctx, &extra))
			original = append(original, extra)

			require.NoError(t, c.LockDiary(ctx, "d1", []byte(goodPassword)))
			for _, p := range loadPages(t, store, "d1") {
				assert.False(t, p.HasContent(), "page %s should be sanitized", p.ID)
			}

			require.NoError(t, c.UnlockDiary(ctx, "d1", []byte(goodPassword)))
			assert.Equal(t, original, loadPages(t, store, "d1"))
		})
	}
}

func TestSavePageRejectsInvalidUTF8Title(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			page := &storage.Page{ID: "p1", DiaryID: "d1", Title: "caf\xe9", Document: []byte("hello")}
			err := store.SavePage(context.Background(), page)
			assert.ErrorIs(t, err, storage.ErrInvalidRecord)
			assert.Empty(t, loadPages(t, store, "d1"))
		})
	}
}

// rawTitleStore returns pages with a title that was written before titles
// were checked
type rawTitleStore struct {
	storage.Storage
	title string
}

func (s *rawTitleStore) LoadPages(ctx context.Context, diaryID string) ([]storage.Page, error) {
	pages, err := s.Storage.LoadPages(ctx, diaryID)
	if err == nil && len(pages) > 0 {
		pages[0].Title = s.title
	}
	return pages, err
}

func TestLockRefusesPageThatWouldNotRoundTrip(t *testing.T) {
	ctx := context.Background()
	inner := newSQLiteTestStore(t)
	store := &rawTitleStore{Storage: inner, title: "caf\xe9"}
	c := newTestCoordinator(t, store)
	seedPages(t, inner, "d1")

	err := c.LockDiary(ctx, "d1", []byte(goodPassword))
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "p1")

	assert.Nil(t, loadRecord(t, inner, "d1"))
	for _, p := range loadPages(t, inner, "d1") {
		assert.True(t, p.HasContent(), "page %s must keep its content", p.ID)
	}
}

func TestUnlockForeignSaltIsCorruption(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	seedPages(t, store, "d1")
	require.NoError(t, c.LockDiary(ctx, "d1", []byte(goodPassword)))

	rec := loadRecord(t, store, "d1")
	bundle, err := payload.Decode(*rec.Payload)
	require.NoError(t, err)
	salt, err := crypto.GenerateSalt()
	require.NoError(t, err)
	bundle.Find("p2").Data.Salt = salt
	encoded, err := payload.Encode(bundle)
	require.NoError(t, err)
	rec.Payload = &encoded
	require.NoError(t, store.SaveLock(ctx, rec))

	err = c.UnlockDiary(ctx, "d1", []byte(goodPassword))
	require.ErrorIs(t, err, ErrPayloadCorrupted)
	assert.NotErrorIs(t, err, ErrWrongPassword)

	assert.True(t, loadRecord(t, store, "d1").Locked)
	for _, p := range loadPages(t, store, "d1") {
		assert.False(t, p.HasContent())
	}

	_, err = c.Diff(ctx, "d1", []byte(goodPassword))
	assert.ErrorIs(t, err, ErrPayloadCorrupted)
}

func TestUnlockStructurallyDamagedEntryIsCorruption(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	seedPages(t, store, "d1")
	require.NoError(t, c.LockDiary(ctx, "d1", []byte(goodPassword)))

	rec := loadRecord(t, store, "d1")
	damaged := `{"pages":[{"pageId":"p1","data":{}}]}`
	rec.Payload = &damaged
	require.NoError(t, store.SaveLock(ctx, rec))

	err := c.UnlockDiary(ctx, "d1", []byte(goodPassword))
	require.ErrorIs(t, err, ErrPayloadCorrupted)
	assert.NotErrorIs(t, err, ErrWrongPassword)
	assert.True(t, loadRecord(t, store, "d1").Locked)
}
