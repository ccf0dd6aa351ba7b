package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tabledrop/tabledrop/internal/config"
	"github.com/tabledrop/tabledrop/internal/core"
	"github.com/tabledrop/tabledrop/internal/ingest"
)

// stubService implements RecordService with canned behavior per test.
type stubService struct {
	importFn  func(ctx context.Context, ds *ingest.Dataset) (*core.ImportResult, error)
	insertFn  func(ctx context.Context, fields map[string]any) (core.Record, error)
	getAllFn  func(ctx context.Context, filter *core.Filter) ([]core.Record, error)
	getByIDFn func(ctx context.Context, id int64) (core.Record, error)
	updateFn  func(ctx context.Context, id int64, fields map[string]any) (core.Record, error)
	deleteFn  func(ctx context.Context, id int64) error
	columnsFn func(ctx context.Context) ([]core.ColumnInfo, error)
	pingErr   error
}

func (s *stubService) ImportDataset(ctx context.Context, ds *ingest.Dataset) (*core.ImportResult, error) {
	return s.importFn(ctx, ds)
}

func (s *stubService) Insert(ctx context.Context, fields map[string]any) (core.Record, error) {
	return s.insertFn(ctx, fields)
}

func (s *stubService) GetAll(ctx context.Context, filter *core.Filter) ([]core.Record, error) {
	return s.getAllFn(ctx, filter)
}

func (s *stubService) GetByID(ctx context.Context, id int64) (core.Record, error) {
	return s.getByIDFn(ctx, id)
}

func (s *stubService) Update(ctx context.Context, id int64, fields map[string]any) (core.Record, error) {
	return s.updateFn(ctx, id, fields)
}

func (s *stubService) Delete(ctx context.Context, id int64) error {
	return s.deleteFn(ctx, id)
}

func (s *stubService) Columns(ctx context.Context) ([]core.ColumnInfo, error) {
	return s.columnsFn(ctx)
}

func (s *stubService) Table() string { return "uploaded_data" }

func (s *stubService) Ping(ctx context.Context) error { return s.pingErr }

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			RequestTimeout: 30 * time.Second,
		},
		Upload: config.UploadConfig{MaxFileSize: 1 << 20},
	}
}

func newTestServer(t *testing.T, svc RecordService) *Server {
	t.Helper()
	return NewServer(svc, testConfig())
}

// multipartCSV builds a multipart form body with the CSV content under the
// "file" field.
func multipartCSV(t *testing.T, csv string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "data.csv")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte(csv)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestUpload_Success(t *testing.T) {
	var got *ingest.Dataset
	svc := &stubService{
		importFn: func(ctx context.Context, ds *ingest.Dataset) (*core.ImportResult, error) {
			got = ds
			return &core.ImportResult{
				UploadID:     "9f3a0c1e-0000-0000-0000-000000000001",
				Table:        "uploaded_data",
				RowsInserted: 2,
			}, nil
		},
	}
	srv := newTestServer(t, svc)

	body, contentType := multipartCSV(t, "name,age\nAlice,30\nBob,25\n")
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	if got == nil || got.RowCount() != 2 {
		t.Fatalf("service received dataset %+v, want 2 rows", got)
	}

	var resp core.ImportResult
	decodeBody(t, rec, &resp)
	if resp.RowsInserted != 2 || resp.Table != "uploaded_data" {
		t.Errorf("response = %+v", resp)
	}
}

func TestUpload_HeaderOnly(t *testing.T) {
	svc := &stubService{
		importFn: func(ctx context.Context, ds *ingest.Dataset) (*core.ImportResult, error) {
			if ds.RowCount() != 0 {
				t.Errorf("RowCount() = %d, want 0", ds.RowCount())
			}
			return &core.ImportResult{Table: "uploaded_data", RowsInserted: 0}, nil
		},
	}
	srv := newTestServer(t, svc)

	body, contentType := multipartCSV(t, "name,age\n")
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp core.ImportResult
	decodeBody(t, rec, &resp)
	if resp.RowsInserted != 0 {
		t.Errorf("RowsInserted = %d, want 0", resp.RowsInserted)
	}
}

func TestUpload_MalformedCSV(t *testing.T) {
	srv := newTestServer(t, &stubService{
		importFn: func(ctx context.Context, ds *ingest.Dataset) (*core.ImportResult, error) {
			t.Fatal("import should not be reached for malformed input")
			return nil, nil
		},
	})

	body, contentType := multipartCSV(t, "name,name\nAlice,Bob\n")
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Code != "CSV001" {
		t.Errorf("code = %q, want CSV001", resp.Code)
	}
}

func TestUpload_MissingFile(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("other", "value")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpload_SchemaConflict(t *testing.T) {
	srv := newTestServer(t, &stubService{
		importFn: func(ctx context.Context, ds *ingest.Dataset) (*core.ImportResult, error) {
			return nil, &core.SchemaConflictError{Column: "age", Existing: "text", Inferred: "bigint"}
		},
	})

	body, contentType := multipartCSV(t, "age\n30\n")
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Code != "SCH001" {
		t.Errorf("code = %q, want SCH001", resp.Code)
	}
}

func TestListRecords(t *testing.T) {
	srv := newTestServer(t, &stubService{
		getAllFn: func(ctx context.Context, filter *core.Filter) ([]core.Record, error) {
			if filter != nil {
				t.Errorf("filter = %+v, want nil", filter)
			}
			return []core.Record{
				{"id": int64(1), "name": "Alice"},
				{"id": int64(2), "name": "Bob"},
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/records/", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Records []core.Record `json:"records"`
		Count   int           `json:"count"`
	}
	decodeBody(t, rec, &resp)
	if resp.Count != 2 || len(resp.Records) != 2 {
		t.Errorf("count = %d, records = %d", resp.Count, len(resp.Records))
	}
}

func TestListRecords_Empty(t *testing.T) {
	srv := newTestServer(t, &stubService{
		getAllFn: func(ctx context.Context, filter *core.Filter) ([]core.Record, error) {
			return []core.Record{}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/records/", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"records":[]`) {
		t.Errorf("empty result should encode as [], got %s", body)
	}
}

func TestListRecords_Filtered(t *testing.T) {
	srv := newTestServer(t, &stubService{
		getAllFn: func(ctx context.Context, filter *core.Filter) ([]core.Record, error) {
			if filter == nil || filter.Column != "name" || filter.Value != "Alice" {
				t.Errorf("filter = %+v", filter)
			}
			return []core.Record{{"id": int64(1), "name": "Alice"}}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/records/?column=name&value=Alice", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCreateRecord(t *testing.T) {
	srv := newTestServer(t, &stubService{
		insertFn: func(ctx context.Context, fields map[string]any) (core.Record, error) {
			if fields["name"] != "Carol" {
				t.Errorf("fields = %+v", fields)
			}
			return core.Record{"id": int64(3), "name": "Carol"}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/records/", strings.NewReader(`{"name":"Carol"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateRecord_BadBody(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	for _, body := range []string{"not json", "{}", `[1,2]`} {
		req := httptest.NewRequest(http.MethodPost, "/records/", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestCreateRecord_ValidationError(t *testing.T) {
	srv := newTestServer(t, &stubService{
		insertFn: func(ctx context.Context, fields map[string]any) (core.Record, error) {
			return nil, &core.ValidationError{Field: "age", Message: "expected an integer"}
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/records/", strings.NewReader(`{"age":"ten"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}

	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Code != "VAL001" {
		t.Errorf("code = %q, want VAL001", resp.Code)
	}
}

func TestGetRecord(t *testing.T) {
	srv := newTestServer(t, &stubService{
		getByIDFn: func(ctx context.Context, id int64) (core.Record, error) {
			if id != 1 {
				t.Errorf("id = %d, want 1", id)
			}
			return core.Record{"id": int64(1), "name": "Alice"}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/records/1", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp core.Record
	decodeBody(t, rec, &resp)
	if resp["name"] != "Alice" {
		t.Errorf("record = %+v", resp)
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	srv := newTestServer(t, &stubService{
		getByIDFn: func(ctx context.Context, id int64) (core.Record, error) {
			return nil, core.ErrNotFound
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/records/999", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Code != "REC001" {
		t.Errorf("code = %q, want REC001", resp.Code)
	}
}

func TestGetRecord_BadID(t *testing.T) {
	srv := newTestServer(t, &stubService{
		getByIDFn: func(ctx context.Context, id int64) (core.Record, error) {
			t.Fatal("service should not be reached for a non-numeric id")
			return nil, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/records/abc", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateRecord(t *testing.T) {
	srv := newTestServer(t, &stubService{
		updateFn: func(ctx context.Context, id int64, fields map[string]any) (core.Record, error) {
			if id != 2 || fields["name"] != "Bobby" {
				t.Errorf("id = %d, fields = %+v", id, fields)
			}
			return core.Record{"id": int64(2), "name": "Bobby"}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPut, "/records/2", strings.NewReader(`{"name":"Bobby"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestDeleteRecord(t *testing.T) {
	deleted := false
	srv := newTestServer(t, &stubService{
		deleteFn: func(ctx context.Context, id int64) error {
			deleted = true
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodDelete, "/records/1", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !deleted {
		t.Error("delete was not forwarded to the service")
	}
}

func TestDeleteRecord_Twice(t *testing.T) {
	calls := 0
	srv := newTestServer(t, &stubService{
		deleteFn: func(ctx context.Context, id int64) error {
			calls++
			if calls > 1 {
				return core.ErrNotFound
			}
			return nil
		},
	})

	first := httptest.NewRecorder()
	srv.Router().ServeHTTP(first, httptest.NewRequest(http.MethodDelete, "/records/1", nil))
	if first.Code != http.StatusNoContent {
		t.Fatalf("first delete status = %d, want 204", first.Code)
	}

	second := httptest.NewRecorder()
	srv.Router().ServeHTTP(second, httptest.NewRequest(http.MethodDelete, "/records/1", nil))
	if second.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", second.Code)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
	}{
		{"database reachable", nil, http.StatusOK},
		{"database down", errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &stubService{pingErr: tt.pingErr})

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestColumns(t *testing.T) {
	srv := newTestServer(t, &stubService{
		columnsFn: func(ctx context.Context) ([]core.ColumnInfo, error) {
			return []core.ColumnInfo{
				{Name: "id", Type: "bigint"},
				{Name: "name", Type: "text"},
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/debug/columns", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Table   string            `json:"table"`
		Columns []core.ColumnInfo `json:"columns"`
	}
	decodeBody(t, rec, &resp)
	if resp.Table != "uploaded_data" || len(resp.Columns) != 2 {
		t.Errorf("response = %+v", resp)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, &stubService{pingErr: nil})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}
