package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
	"github.com/filmdist/ingest/internal/usecase"
)

// mockUploadService provides a configurable mock for UploadService.
type mockUploadService struct {
	saveChunkFn      func(ctx context.Context, originalName string, startByte int64, data io.Reader) (string, error)
	hasChunkFn       func(originalName string, startByte int64) bool
	completeUploadFn func(ctx context.Context, input usecase.CompleteUploadInput) (*model.ProcessingJob, error)
}

func (m *mockUploadService) SaveChunk(ctx context.Context, originalName string, startByte int64, data io.Reader) (string, error) {
	if m.saveChunkFn != nil {
		return m.saveChunkFn(ctx, originalName, startByte, data)
	}
	return "uploads/chunks/movie.mp4/0", nil
}

func (m *mockUploadService) HasChunk(originalName string, startByte int64) bool {
	if m.hasChunkFn != nil {
		return m.hasChunkFn(originalName, startByte)
	}
	return false
}

func (m *mockUploadService) CompleteUpload(ctx context.Context, input usecase.CompleteUploadInput) (*model.ProcessingJob, error) {
	if m.completeUploadFn != nil {
		return m.completeUploadFn(ctx, input)
	}
	return model.NewProcessingJob(input.Owner, input.Type, input.FileName, "q1"), nil
}

func chunkForm(t *testing.T, fileName, start string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("chunk", fileName)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("chunk-bytes")); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("fileName", fileName); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("start", start); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return body, mw.FormDataContentType()
}

func TestUploadHandler_SaveChunk(t *testing.T) {
	var gotName string
	var gotStart int64
	h := NewUploadHandler(&mockUploadService{
		saveChunkFn: func(_ context.Context, name string, start int64, data io.Reader) (string, error) {
			gotName = name
			gotStart = start
			if _, err := io.ReadAll(data); err != nil {
				t.Fatal(err)
			}
			return "uploads/chunks/movie.mp4/1024", nil
		},
	})

	body, contentType := chunkForm(t, "movie.mp4", "1024")
	req := httptest.NewRequest(http.MethodPost, "/upload-chunk", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.SaveChunk(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if gotName != "movie.mp4" || gotStart != 1024 {
		t.Errorf("saved (%q, %d), want (movie.mp4, 1024)", gotName, gotStart)
	}

	var resp SaveChunkResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ChunkPath == "" {
		t.Error("expected a chunk path")
	}
}

func TestUploadHandler_SaveChunk_BadStart(t *testing.T) {
	h := NewUploadHandler(&mockUploadService{})

	body, contentType := chunkForm(t, "movie.mp4", "not-a-number")
	req := httptest.NewRequest(http.MethodPost, "/upload-chunk", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.SaveChunk(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUploadHandler_CheckChunk(t *testing.T) {
	h := NewUploadHandler(&mockUploadService{
		hasChunkFn: func(name string, start int64) bool {
			return name == "movie.mp4" && start == 0
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/check-upload-chunk?fileName=movie.mp4&start=0", nil)
	rec := httptest.NewRecorder()
	h.CheckChunk(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp CheckChunkResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Exists {
		t.Error("Exists = false, want true")
	}
}

func TestUploadHandler_CompleteUpload(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svc        *mockUploadService
		wantStatus int
	}{
		{
			name:       "film upload",
			body:       `{"clientId":"c1","fileName":"movie.mp4","type":"film","resourceId":"F1"}`,
			svc:        &mockUploadService{},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "episode upload",
			body:       `{"clientId":"c1","fileName":"e1.mp4","type":"episode","resourceId":"E1","filmId":"F1","seasonId":"S1"}`,
			svc:        &mockUploadService{},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "incomplete episode reference",
			body:       `{"clientId":"c1","fileName":"e1.mp4","type":"episode","resourceId":"E1","filmId":"F1"}`,
			svc:        &mockUploadService{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown type",
			body:       `{"clientId":"c1","fileName":"movie.mp4","type":"series","resourceId":"F1"}`,
			svc:        &mockUploadService{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "existing job conflict",
			body: `{"clientId":"c1","fileName":"movie.mp4","type":"film","resourceId":"F1"}`,
			svc: &mockUploadService{
				completeUploadFn: func(context.Context, usecase.CompleteUploadInput) (*model.ProcessingJob, error) {
					return nil, &repository.ExistingJobError{JobID: "j1", Status: "active"}
				},
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "queue full",
			body: `{"clientId":"c1","fileName":"movie.mp4","type":"film","resourceId":"F1"}`,
			svc: &mockUploadService{
				completeUploadFn: func(context.Context, usecase.CompleteUploadInput) (*model.ProcessingJob, error) {
					return nil, repository.ErrBusy
				},
			},
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name: "missing first chunk",
			body: `{"clientId":"c1","fileName":"movie.mp4","type":"film","resourceId":"F1"}`,
			svc: &mockUploadService{
				completeUploadFn: func(context.Context, usecase.CompleteUploadInput) (*model.ProcessingJob, error) {
					return nil, repository.ErrChunkMissing
				},
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewUploadHandler(tt.svc)

			req := httptest.NewRequest(http.MethodPost, "/complete-upload", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.CompleteUpload(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestUploadHandler_TrailerUpload_ForcesTrailerType(t *testing.T) {
	var gotType model.JobType
	h := NewUploadHandler(&mockUploadService{
		completeUploadFn: func(_ context.Context, input usecase.CompleteUploadInput) (*model.ProcessingJob, error) {
			gotType = input.Type
			return model.NewProcessingJob(input.Owner, input.Type, input.FileName, "q1"), nil
		},
	})

	body := `{"clientId":"c1","fileName":"trailer.mp4","type":"film","resourceId":"F1"}`
	req := httptest.NewRequest(http.MethodPost, "/trailer-upload", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.TrailerUpload(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if gotType != model.JobTypeTrailer {
		t.Errorf("type = %v, want trailer", gotType)
	}
}
