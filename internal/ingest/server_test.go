package ingest

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/errs"
	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/store"
)

type fakeTelemetryStore struct {
	store.TelemetryStore
	appended []model.TelemetryPoint
	failWith error
}

func (f *fakeTelemetryStore) AppendBatch(ctx context.Context, points []model.TelemetryPoint) (int, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	f.appended = append(f.appended, points...)
	return len(points), nil
}

const samplePayload = `[{"device_id":"d1","tag_id":"t1","ts":1000,"seq":0,"value_type":"Float64","value":42.5,"quality":192}]`

func TestHandleBatchPersistsDecodedPoints(t *testing.T) {
	fake := &fakeTelemetryStore{}
	s := NewServer(fake, nil, zap.NewNop())

	req := httptest.NewRequest("POST", "/api/telemetry/batch", bytes.NewBufferString(samplePayload))
	rec := httptest.NewRecorder()
	s.handleBatch(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(fake.appended) != 1 || fake.appended[0].DeviceID != "d1" {
		t.Errorf("expected the point to be appended, got %v", fake.appended)
	}
}

func TestHandleBatchDecompressesGzipBody(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte(samplePayload))
	_ = gz.Close()

	fake := &fakeTelemetryStore{}
	s := NewServer(fake, nil, zap.NewNop())

	req := httptest.NewRequest("POST", "/api/telemetry/batch", &buf)
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	s.handleBatch(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(fake.appended) != 1 {
		t.Errorf("expected 1 point appended after gzip decode, got %d", len(fake.appended))
	}
}

func TestHandleBatchRejectsMalformedBody(t *testing.T) {
	fake := &fakeTelemetryStore{}
	s := NewServer(fake, nil, zap.NewNop())

	req := httptest.NewRequest("POST", "/api/telemetry/batch", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	s.handleBatch(rec, req)

	if rec.Code != 400 {
		t.Errorf("expected 400 for a malformed body, got %d", rec.Code)
	}
}

func TestHandleBatchSurfacesRateLimitAs429(t *testing.T) {
	fake := &fakeTelemetryStore{failWith: errs.New(errs.CodeRateLimited, "no tokens")}
	s := NewServer(fake, nil, zap.NewNop())

	req := httptest.NewRequest("POST", "/api/telemetry/batch", bytes.NewBufferString(samplePayload))
	rec := httptest.NewRecorder()
	s.handleBatch(rec, req)

	if rec.Code != 429 {
		t.Errorf("expected 429 for a rate-limited append, got %d", rec.Code)
	}
}

func TestHandleBatchRejectsNonPost(t *testing.T) {
	fake := &fakeTelemetryStore{}
	s := NewServer(fake, nil, zap.NewNop())

	req := httptest.NewRequest("GET", "/api/telemetry/batch", nil)
	rec := httptest.NewRecorder()
	s.handleBatch(rec, req)

	if rec.Code != 405 {
		t.Errorf("expected 405 for a non-POST request, got %d", rec.Code)
	}
}
