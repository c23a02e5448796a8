package reports

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails Put for filenames listed in failOn.
type flakyStore struct {
	*MemoryStore
	failOn map[string]bool
	mu     sync.Mutex
	keys   []string
}

func newFlakyStore(failOn ...string) *flakyStore {
	f := &flakyStore{MemoryStore: NewMemoryStore(), failOn: map[string]bool{}}
	for _, name := range failOn {
		f.failOn[name] = true
	}
	return f
}

func (f *flakyStore) Put(ctx context.Context, key string, upload Upload) error {
	if f.failOn[upload.Filename] {
		return errors.New("disk full")
	}
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	return f.MemoryStore.Put(ctx, key, upload)
}

type attachmentCounts struct{ stored, failed int }

func (a *attachmentCounts) ObserveAttachments(stored, failed int) {
	a.stored += stored
	a.failed += failed
}

func (a *attachmentCounts) ObserveSubmitLatency(string, float64) {}

func upload(name, body string) Upload {
	return Upload{Filename: name, ContentType: "application/pdf", Size: int64(len(body)), Body: strings.NewReader(body)}
}

func TestSubmit_StoresEachFileIndependently(t *testing.T) {
	store := newFlakyStore("broken.pdf")
	metrics := &attachmentCounts{}
	svc := NewService(NewInMemoryRepository(), store, metrics, nil)

	res, err := svc.Submit(context.Background(), ReportRequest{Name: " Karim ", Age: "40", Mobile: "01800000000"}, []Upload{
		upload("xray.pdf", "x-ray"),
		upload("broken.pdf", "nope"),
		upload("blood test.pdf", "cbc"),
		{Filename: "", Body: strings.NewReader("skipped")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stored)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "Karim", res.Report.Name)

	require.Len(t, res.Report.Attachments, 2)
	assert.Equal(t, "xray.pdf", res.Report.Attachments[0].Filename)
	assert.Equal(t, "blood test.pdf", res.Report.Attachments[1].Filename)
	assert.True(t, strings.HasSuffix(res.Report.Attachments[1].Key, "-blood_test.pdf"))

	data, ok := store.Object(res.Report.Attachments[0].Key)
	require.True(t, ok)
	assert.Equal(t, "x-ray", string(data))
	assert.Equal(t, attachmentCounts{stored: 2, failed: 1}, *metrics)
}

func TestSubmit_AllFilesFailingStillSaves(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), newFlakyStore("a.pdf"), nil, nil)
	res, err := svc.Submit(context.Background(), ReportRequest{Name: "Karim", Mobile: "018"}, []Upload{upload("a.pdf", "1")})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stored)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, res.Report.Attachments)
}

func TestSubmit_Validation(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), NewMemoryStore(), nil, nil)
	_, err := svc.Submit(context.Background(), ReportRequest{Age: "3"}, nil)
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"name", "mobile"}, verr.Fields)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "Required fields missing: name, mobile.", ErrorMessage(err))
}

func TestGet_LinksAttachments(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(NewInMemoryRepository(), store, nil, nil)
	res, err := svc.Submit(context.Background(), ReportRequest{Name: "Karim", Mobile: "018"}, []Upload{upload("a.pdf", "1")})
	require.NoError(t, err)

	// a file removed behind the record's back is left out of the view
	_, err = svc.repo.Insert(context.Background(), &Report{Name: "Ghost", Mobile: "1", Attachments: []Attachment{{Key: "missing"}}})
	require.NoError(t, err)

	view, err := svc.Get(context.Background(), res.Report.ID)
	require.NoError(t, err)
	require.Len(t, view.Attachments, 1)
	assert.Equal(t, "memory://"+res.Report.Attachments[0].Key, view.Attachments[0].URL)

	ghost, err := svc.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Empty(t, ghost.Attachments)

	_, err = svc.Get(context.Background(), 99)
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestSearchPublic(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), NewMemoryStore(), nil, nil)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := svc.Submit(ctx, ReportRequest{Name: "Karim", Mobile: "018"}, nil)
		require.NoError(t, err)
	}
	_, err := svc.Submit(ctx, ReportRequest{Name: "Rahim", Mobile: "017"}, nil)
	require.NoError(t, err)

	empty, err := svc.SearchPublic(ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, empty)

	found, err := svc.SearchPublic(ctx, "karim")
	require.NoError(t, err)
	require.Len(t, found, 10)
	assert.Equal(t, int64(12), found[0].ID)

	byMobile, err := svc.SearchPublic(ctx, "017")
	require.NoError(t, err)
	require.Len(t, byMobile, 1)
	assert.Equal(t, "Rahim", byMobile[0].Name)
}

func TestDelete_RemovesAttachments(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(NewInMemoryRepository(), store, nil, nil)
	res, err := svc.Submit(context.Background(), ReportRequest{Name: "Karim", Mobile: "018"}, []Upload{upload("a.pdf", "1")})
	require.NoError(t, err)
	key := res.Report.Attachments[0].Key

	require.NoError(t, svc.Delete(context.Background(), res.Report.ID))
	_, ok := store.Object(key)
	assert.False(t, ok)
	assert.ErrorIs(t, svc.Delete(context.Background(), res.Report.ID), ErrReportNotFound)
}

func TestMemoryStore_ReadError(t *testing.T) {
	err := NewMemoryStore().Put(context.Background(), "k", Upload{Body: io.MultiReader(errReader{})})
	assert.Error(t, err)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }
