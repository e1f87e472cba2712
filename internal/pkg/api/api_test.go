package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ambercms/amber-update/internal/pkg/api/apicommon"
	"github.com/ambercms/amber-update/internal/pkg/archive"
	"github.com/ambercms/amber-update/internal/pkg/backup"
	"github.com/ambercms/amber-update/internal/pkg/repos"
	"github.com/ambercms/amber-update/internal/pkg/structure"
	"github.com/ambercms/amber-update/internal/pkg/types"
	"github.com/ambercms/amber-update/internal/pkg/update"
	"github.com/ambercms/amber-update/internal/pkg/versioncfg"
)

const testAdminToken = "test-token"

type testApp struct {
	engine  *gin.Engine
	orch    *update.Orchestrator
	backups *backup.Store
	appRoot string
	root    string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	appRoot := filepath.Join(root, "live")
	seedAppTree(t, appRoot, "1.0.0")

	db, err := repos.Open(filepath.Join(root, "meta.db"))
	if err != nil {
		t.Fatalf("failed to open metadata database: %v", err)
	}
	store := backup.NewStore(repos.NewBackupRepo(db), appRoot, filepath.Join(root, "backups"))
	version := versioncfg.New(filepath.Join(appRoot, "config", "cms.yaml"))
	orch := update.NewOrchestrator(db, store, repos.NewUpdateRepo(db), version, appRoot, filepath.Join(root, "scratch"))

	config := &apicommon.Config{
		AdminToken:     testAdminToken,
		MaxUpdateSize:  100 * 1024 * 1024,
		MaxPackageSize: 50 * 1024 * 1024,
		HistoryLimit:   20,
		UploadSpoolDir: filepath.Join(root, "scratch"),
	}
	return &testApp{
		engine:  BuildApp(config, orch, store),
		orch:    orch,
		backups: store,
		appRoot: appRoot,
		root:    root,
	}
}

func seedAppTree(t *testing.T, root, tag string) {
	t.Helper()
	for _, dir := range structure.RequiredDirectories {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(root, dir, "marker.php"), []byte("content "+tag), 0o644); err != nil {
			t.Fatalf("failed to seed file: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "composer.json"), []byte(`{"tag":"`+tag+`"}`), 0o644); err != nil {
		t.Fatalf("failed to seed composer.json: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "config", "cms.yaml"), []byte("version: \""+tag+"\"\n"), 0o644); err != nil {
		t.Fatalf("failed to seed version config: %v", err)
	}
}

func buildUpdateArchive(t *testing.T, root, version string) string {
	t.Helper()
	payload := filepath.Join(root, "payload-"+version)
	seedAppTree(t, payload, version)

	var dirs, files []string
	for _, dir := range structure.PresentDirectories(payload) {
		dirs = append(dirs, filepath.Join(payload, dir))
	}
	for _, name := range structure.PresentFiles(payload, structure.UpdateEssentialFiles) {
		files = append(files, filepath.Join(payload, name))
	}
	archivePath := filepath.Join(root, "update-"+version+".zip")
	if err := archive.PackZip(dirs, files, archivePath); err != nil {
		t.Fatalf("failed to build update archive: %v", err)
	}
	return archivePath
}

// multipartUpload builds a multipart body carrying one ZIP file part plus the
// given form fields. The file part is declared application/zip, as browsers
// and HTTP clients do for .zip uploads.
func multipartUpload(t *testing.T, field, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	header.Set("Content-Type", "application/zip")
	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create file part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed to write file part: %v", err)
	}
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			t.Fatalf("failed to write field %q: %v", key, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to finalize multipart body: %v", err)
	}
	return body, w.FormDataContentType()
}

func (a *testApp) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodGet, "/api/v1/ping", nil, "", false)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestSystemEndpoints_RejectMissingToken(t *testing.T) {
	app := newTestApp(t)
	for _, path := range []string{"/api/v1/system/update/history", "/api/v1/system/backups"} {
		rec := app.do(t, http.MethodGet, path, nil, "", false)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", path, rec.Code)
		}
	}
}

func TestUpload_InvalidArchiveCreatesNoRecords(t *testing.T) {
	app := newTestApp(t)
	body, contentType := multipartUpload(t, "update_zip", "update.zip", []byte("not a zip"), map[string]string{
		"version": "2.0.0",
	})

	rec := app.do(t, http.MethodPost, "/api/v1/system/update", body, contentType, true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp apicommon.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Message != "Invalid update ZIP file" || len(resp.Errors) == 0 {
		t.Errorf("unexpected response: %+v", resp)
	}

	// A rejected upload never reaches the history.
	history, err := app.orch.History(context.Background(), 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d records", len(history))
	}
	backups, err := app.backups.ListBackups(context.Background())
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected no backups, got %d", len(backups))
	}
}

func TestUpload_MissingVersion(t *testing.T) {
	app := newTestApp(t)
	body, contentType := multipartUpload(t, "update_zip", "update.zip", []byte("irrelevant"), nil)
	rec := app.do(t, http.MethodPost, "/api/v1/system/update", body, contentType, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestUpload_Success(t *testing.T) {
	app := newTestApp(t)
	raw, err := os.ReadFile(buildUpdateArchive(t, app.root, "2.0.0"))
	if err != nil {
		t.Fatalf("failed to read archive: %v", err)
	}
	body, contentType := multipartUpload(t, "update_zip", "cms-2.0.0.zip", raw, map[string]string{
		"version":   "2.0.0",
		"changelog": "security fixes",
	})

	rec := app.do(t, http.MethodPost, "/api/v1/system/update", body, contentType, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Message string              `json:"message"`
		Update  *types.UpdateRecord `json:"update"`
		Backup  apicommon.BackupView `json:"backup"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Message != "CMS updated successfully to version 2.0.0" {
		t.Errorf("unexpected message: %q", resp.Message)
	}
	if resp.Update == nil || resp.Update.Status != types.StatusCompleted {
		t.Errorf("unexpected update record: %+v", resp.Update)
	}
	if resp.Update != nil && resp.Update.UpdatedBy != "admin" {
		t.Errorf("expected default actor admin, got %q", resp.Update.UpdatedBy)
	}
	if resp.Backup.FileSizeHuman == "" {
		t.Error("expected a human readable backup size")
	}

	got, err := os.ReadFile(filepath.Join(app.appRoot, "app", "marker.php"))
	if err != nil || string(got) != "content 2.0.0" {
		t.Errorf("live tree not updated: %q err=%v", got, err)
	}
}

func TestValidatePackage(t *testing.T) {
	app := newTestApp(t)

	// A valid plugin payload.
	payload := filepath.Join(app.root, "plugin")
	if err := os.MkdirAll(payload, 0o755); err != nil {
		t.Fatalf("failed to create payload: %v", err)
	}
	manifest := `{"name":"Example","slug":"example","version":"1.0.0","author":"Amber"}`
	if err := os.WriteFile(filepath.Join(payload, "plugin.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	archivePath := filepath.Join(app.root, "plugin.zip")
	if err := archive.PackZip(nil, []string{filepath.Join(payload, "plugin.json")}, archivePath); err != nil {
		t.Fatalf("failed to pack plugin: %v", err)
	}
	raw, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatalf("failed to read archive: %v", err)
	}

	body, contentType := multipartUpload(t, "package_zip", "plugin.zip", raw, nil)
	rec := app.do(t, http.MethodPost, "/api/v1/system/packages/validate?kind=plugin", body, contentType, true)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// The same archive probed as a theme misses theme.json.
	body, contentType = multipartUpload(t, "package_zip", "plugin.zip", raw, nil)
	rec = app.do(t, http.MethodPost, "/api/v1/system/packages/validate?kind=theme", body, contentType, true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}

	body, contentType = multipartUpload(t, "package_zip", "plugin.zip", raw, nil)
	rec = app.do(t, http.MethodPost, "/api/v1/system/packages/validate?kind=widget", body, contentType, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown kind, got %d", rec.Code)
	}
}

func TestRollbackEndpoint(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodPost, "/api/v1/system/backups/not-a-uuid/rollback", nil, "", true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id, got %d", rec.Code)
	}

	rec = app.do(t, http.MethodPost, "/api/v1/system/backups/"+uuid.NewString()+"/rollback", nil, "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown backup, got %d", rec.Code)
	}
}

func TestDeleteBackupEndpoint(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	created, err := app.backups.CreateBackup(ctx, nil, "1.0.0", "admin")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	rec := app.do(t, http.MethodDelete, "/api/v1/system/backups/"+created.ID.String(), nil, "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, err := os.Stat(created.BackupPath); !os.IsNotExist(err) {
		t.Error("archive file survived deletion")
	}

	rec = app.do(t, http.MethodDelete, "/api/v1/system/backups/"+created.ID.String(), nil, "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}
}
