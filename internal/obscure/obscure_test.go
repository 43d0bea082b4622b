package obscure

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
)

type fakeStore struct {
	uploaded   map[string][]byte
	deleted    []string
	failUpload map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		uploaded:   map[string][]byte{},
		failUpload: map[string]error{},
	}
}

func (s *fakeStore) UploadBytes(_ context.Context, objectName string, data []byte, _ string) (*minio.UploadInfo, error) {
	for marker, err := range s.failUpload {
		if strings.Contains(objectName, marker) {
			return nil, err
		}
	}
	s.uploaded[objectName] = data
	return &minio.UploadInfo{Key: objectName}, nil
}

func (s *fakeStore) DeleteObject(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

func newTestService(store *fakeStore, totalPages int) *Service {
	svc := NewService(store, nil)
	svc.pageCount = func(_ []byte) (int, error) { return totalPages, nil }
	svc.trim = func(src []byte, pagesToKeep int) ([]byte, error) {
		return []byte("preview"), nil
	}
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }
	return svc
}

func pdfDataURI(body string) string {
	return "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte(body))
}

func TestPagesToKeep(t *testing.T) {
	cases := []struct {
		total, percentage, want int
	}{
		{10, 0, 0},
		{10, 100, 10},
		{10, 50, 5},
		{10, 1, 1},    // ceil(0.1) = 1
		{3, 50, 2},    // ceil(1.5) = 2
		{7, 33, 3},    // ceil(2.31) = 3
		{1, 99, 1},    // ceil(0.99) = 1
		{200, 25, 50},
	}
	for _, c := range cases {
		if got := PagesToKeep(c.total, c.percentage); got != c.want {
			t.Errorf("PagesToKeep(%d, %d) = %d, want %d", c.total, c.percentage, got, c.want)
		}
	}
}

func TestDecodeDataURI(t *testing.T) {
	if _, err := DecodeDataURI(pdfDataURI("%PDF-1.4")); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	bad := []string{
		"",
		"not a data uri",
		"data:application/pdf;base64",                  // no comma
		"data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("x")),
		"data:application/pdf;base64,%%%not-base64%%%",
		"data:application/pdf;base64,",                 // empty body
	}
	for _, payload := range bad {
		if _, err := DecodeDataURI(payload); !errors.Is(err, ErrBadPayload) {
			t.Errorf("payload %q: expected ErrBadPayload, got %v", payload, err)
		}
	}
}

func TestProcess_UploadsBothBlobs(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, 10)

	res, err := svc.Process(context.Background(), 7, 3, pdfDataURI("%PDF-1.4 fake"), 40)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if res.TotalPages != 10 || res.PreviewPages != 4 {
		t.Fatalf("expected 10 total / 4 preview pages, got %d/%d", res.TotalPages, res.PreviewPages)
	}
	if res.OriginalKey != "documents/7/3-original-1700000000.pdf" {
		t.Fatalf("unexpected original key %q", res.OriginalKey)
	}
	if res.ProcessedKey != "documents/7/3-processed-1700000000.pdf" {
		t.Fatalf("unexpected processed key %q", res.ProcessedKey)
	}
	if _, ok := store.uploaded[res.OriginalKey]; !ok {
		t.Fatal("original blob not uploaded")
	}
	if string(store.uploaded[res.ProcessedKey]) != "preview" {
		t.Fatal("preview blob not uploaded")
	}
	if len(store.deleted) != 0 {
		t.Fatalf("unexpected deletes: %v", store.deleted)
	}
}

func TestProcess_FullPercentageKeepsAllPages(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, 6)

	var trimmedTo int
	svc.trim = func(_ []byte, pagesToKeep int) ([]byte, error) {
		trimmedTo = pagesToKeep
		return []byte("full copy"), nil
	}

	res, err := svc.Process(context.Background(), 1, 1, pdfDataURI("doc"), 100)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if trimmedTo != 6 || res.PreviewPages != 6 {
		t.Fatalf("expected all 6 pages kept, trimmed to %d, result %d", trimmedTo, res.PreviewPages)
	}
}

func TestProcess_ZeroPercentageRejected(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, 10)

	_, err := svc.Process(context.Background(), 1, 1, pdfDataURI("doc"), 0)
	if !errors.Is(err, ErrEmptyPreview) {
		t.Fatalf("expected ErrEmptyPreview, got %v", err)
	}
	if len(store.uploaded) != 0 {
		t.Fatal("nothing should be uploaded when validation fails")
	}
}

func TestProcess_PercentageOutOfRange(t *testing.T) {
	svc := newTestService(newFakeStore(), 10)
	for _, p := range []int{-1, 101} {
		if _, err := svc.Process(context.Background(), 1, 1, pdfDataURI("doc"), p); !errors.Is(err, ErrBadPercentage) {
			t.Errorf("percentage %d: expected ErrBadPercentage, got %v", p, err)
		}
	}
}

func TestProcess_MalformedPayloadFailsBeforeUpload(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, 10)

	_, err := svc.Process(context.Background(), 1, 1, "not a data uri", 50)
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("expected ErrBadPayload, got %v", err)
	}
	if len(store.uploaded) != 0 {
		t.Fatal("no network call should happen for malformed payload")
	}
}

func TestProcess_OriginalUploadFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.failUpload["-original-"] = errors.New("bucket unavailable")
	svc := newTestService(store, 10)

	trimCalled := false
	svc.trim = func(_ []byte, _ int) ([]byte, error) {
		trimCalled = true
		return []byte("preview"), nil
	}

	_, err := svc.Process(context.Background(), 1, 1, pdfDataURI("doc"), 50)
	if err == nil {
		t.Fatal("expected error")
	}
	if trimCalled {
		t.Fatal("preview must never be produced when the original upload fails")
	}
	if len(store.uploaded) != 0 || len(store.deleted) != 0 {
		t.Fatalf("unexpected store state: uploaded=%v deleted=%v", store.uploaded, store.deleted)
	}
}

func TestProcess_PreviewUploadFailureDeletesOriginal(t *testing.T) {
	store := newFakeStore()
	store.failUpload["-processed-"] = errors.New("bucket unavailable")
	svc := newTestService(store, 10)

	_, err := svc.Process(context.Background(), 9, 4, pdfDataURI("doc"), 50)
	if err == nil {
		t.Fatal("operation must report failure")
	}

	originalKey := "documents/9/4-original-1700000000.pdf"
	if len(store.deleted) != 1 || store.deleted[0] != originalKey {
		t.Fatalf("expected compensating delete of %q, got %v", originalKey, store.deleted)
	}
	if _, ok := store.uploaded[originalKey]; ok {
		t.Fatal("original blob still retrievable after compensating delete")
	}
}
