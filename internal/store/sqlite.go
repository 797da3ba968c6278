package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/smiley-maker/rooms-that-sell/internal/roomtype"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) applyMigrations(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

// --- Projects ---

func (s *SQLiteStore) PutProject(ctx context.Context, p *Project) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO projects (id, user_id, name, address, created_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            user_id = excluded.user_id,
            name = excluded.name,
            address = excluded.address`,
		p.ID, p.UserID, p.Name, nullableString(p.Address), formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put project %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var (
		p         Project
		address   sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, address, created_at FROM projects WHERE id = ?`, projectID,
	).Scan(&p.ID, &p.UserID, &p.Name, &address, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", projectID, err)
	}
	p.Address = address.String
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// --- Images ---

const imageColumns = `id, project_id, user_id, filename, original_key, staged_key, status, room_type,
    width, height, file_size, detected_features_json, current_version_id, created_at, updated_at`

func (s *SQLiteStore) PutImage(ctx context.Context, img *Image) error {
	features, err := json.Marshal(img.DetectedFeatures)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO images (`+imageColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            filename = excluded.filename,
            original_key = excluded.original_key,
            staged_key = excluded.staged_key,
            status = excluded.status,
            room_type = excluded.room_type,
            width = excluded.width,
            height = excluded.height,
            file_size = excluded.file_size,
            detected_features_json = excluded.detected_features_json,
            current_version_id = excluded.current_version_id,
            updated_at = excluded.updated_at`,
		img.ID, img.ProjectID, img.UserID, img.Filename, img.OriginalKey,
		nullableString(img.StagedKey), string(img.Status), string(img.RoomType),
		img.Width, img.Height, img.FileSize, string(features),
		nullableString(img.CurrentVersionID), formatTime(img.CreatedAt), formatTime(img.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put image %s: %w", img.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*Image, error) {
	var (
		img                  Image
		stagedKey, currentID sql.NullString
		features             sql.NullString
		status, room         string
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&img.ID, &img.ProjectID, &img.UserID, &img.Filename, &img.OriginalKey,
		&stagedKey, &status, &room, &img.Width, &img.Height, &img.FileSize,
		&features, &currentID, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := ParseImageStatus(status)
	if err != nil {
		return nil, err
	}
	img.Status = parsed
	img.RoomType = roomtype.RoomType(room)
	img.StagedKey = stagedKey.String
	img.CurrentVersionID = currentID.String
	img.CreatedAt = parseTime(createdAt)
	img.UpdatedAt = parseTime(updatedAt)
	if features.Valid && features.String != "" && features.String != "null" {
		if err := json.Unmarshal([]byte(features.String), &img.DetectedFeatures); err != nil {
			return nil, fmt.Errorf("unmarshal features: %w", err)
		}
	}
	return &img, nil
}

func (s *SQLiteStore) GetImage(ctx context.Context, projectID, imageID string) (*Image, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE project_id = ? AND id = ?`, projectID, imageID)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get image %s: %w", imageID, err)
	}
	return img, nil
}

func (s *SQLiteStore) ListImages(ctx context.Context, projectID string) ([]*Image, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE project_id = ? ORDER BY created_at, rowid`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list images %s: %w", projectID, err)
	}
	defer rows.Close()

	var images []*Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *SQLiteStore) DeleteImage(ctx context.Context, projectID, imageID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE project_id = ? AND id = ?`, projectID, imageID); err != nil {
		return fmt.Errorf("delete image %s: %w", imageID, err)
	}
	return nil
}

// --- Versions ---

const versionColumns = `id, image_id, staged_key, style_preset, custom_prompt, ai_model, pinned, created_at`

func (s *SQLiteStore) PutVersion(ctx context.Context, projectID string, v *ImageVersion) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO image_versions (id, image_id, project_id, staged_key, style_preset, custom_prompt, ai_model, pinned, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            staged_key = excluded.staged_key,
            style_preset = excluded.style_preset,
            custom_prompt = excluded.custom_prompt,
            ai_model = excluded.ai_model,
            pinned = excluded.pinned`,
		v.ID, v.ImageID, projectID, v.StagedKey, v.StylePreset,
		nullableString(v.CustomPrompt), v.AIModel, boolToInt(v.Pinned), formatTime(v.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put version %s: %w", v.ID, err)
	}
	return nil
}

func scanVersion(row rowScanner) (*ImageVersion, error) {
	var (
		v         ImageVersion
		prompt    sql.NullString
		pinned    int
		createdAt string
	)
	if err := row.Scan(&v.ID, &v.ImageID, &v.StagedKey, &v.StylePreset, &prompt, &v.AIModel, &pinned, &createdAt); err != nil {
		return nil, err
	}
	v.CustomPrompt = prompt.String
	v.Pinned = pinned != 0
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}

func (s *SQLiteStore) GetVersion(ctx context.Context, projectID, imageID, versionID string) (*ImageVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM image_versions WHERE project_id = ? AND image_id = ? AND id = ?`,
		projectID, imageID, versionID)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get version %s: %w", versionID, err)
	}
	return v, nil
}

func (s *SQLiteStore) ListVersions(ctx context.Context, projectID, imageID string) ([]*ImageVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM image_versions WHERE project_id = ? AND image_id = ? ORDER BY created_at, rowid`,
		projectID, imageID)
	if err != nil {
		return nil, fmt.Errorf("list versions %s: %w", imageID, err)
	}
	defer rows.Close()

	var versions []*ImageVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *SQLiteStore) DeleteVersions(ctx context.Context, projectID, imageID string, versionIDs []string) error {
	if len(versionIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	for _, id := range versionIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM image_versions WHERE project_id = ? AND image_id = ? AND id = ?`,
			projectID, imageID, id); err != nil {
			return fmt.Errorf("delete version %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// --- Exports ---

func (s *SQLiteStore) PutExport(ctx context.Context, exp *MLSExport) error {
	if exp.CreatedAt.IsZero() {
		exp.CreatedAt = time.Now().UTC()
	}
	imageIDs, err := json.Marshal(exp.ImageIDs)
	if err != nil {
		return fmt.Errorf("marshal image ids: %w", err)
	}
	resolutions, err := json.Marshal(exp.Resolutions)
	if err != nil {
		return fmt.Errorf("marshal resolutions: %w", err)
	}
	files, err := json.Marshal(exp.Files)
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}

	var completed interface{}
	if !exp.CompletedAt.IsZero() {
		completed = formatTime(exp.CompletedAt)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO mls_exports (id, project_id, image_ids_json, resolutions_json, files_json, status,
            compliance_validated, archive_key, archive_name, error_message, created_at, completed_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            image_ids_json = excluded.image_ids_json,
            resolutions_json = excluded.resolutions_json,
            files_json = excluded.files_json,
            status = excluded.status,
            compliance_validated = excluded.compliance_validated,
            archive_key = excluded.archive_key,
            archive_name = excluded.archive_name,
            error_message = excluded.error_message,
            completed_at = excluded.completed_at`,
		exp.ID, exp.ProjectID, string(imageIDs), string(resolutions), string(files), string(exp.Status),
		boolToInt(exp.ComplianceValidated), nullableString(exp.ArchiveKey), nullableString(exp.ArchiveName),
		nullableString(exp.Error), formatTime(exp.CreatedAt), completed,
	)
	if err != nil {
		return fmt.Errorf("put export %s: %w", exp.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetExport(ctx context.Context, projectID, exportID string) (*MLSExport, error) {
	var (
		exp                                 MLSExport
		imageIDs, resolutions               string
		files, archiveKey, archiveName, msg sql.NullString
		status, createdAt                   string
		completedAt                         sql.NullString
		compliance                          int
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT id, project_id, image_ids_json, resolutions_json, files_json, status,
            compliance_validated, archive_key, archive_name, error_message, created_at, completed_at
        FROM mls_exports WHERE project_id = ? AND id = ?`, projectID, exportID,
	).Scan(&exp.ID, &exp.ProjectID, &imageIDs, &resolutions, &files, &status,
		&compliance, &archiveKey, &archiveName, &msg, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get export %s: %w", exportID, err)
	}

	if err := json.Unmarshal([]byte(imageIDs), &exp.ImageIDs); err != nil {
		return nil, fmt.Errorf("unmarshal image ids: %w", err)
	}
	if err := json.Unmarshal([]byte(resolutions), &exp.Resolutions); err != nil {
		return nil, fmt.Errorf("unmarshal resolutions: %w", err)
	}
	if files.Valid && files.String != "" && files.String != "null" {
		if err := json.Unmarshal([]byte(files.String), &exp.Files); err != nil {
			return nil, fmt.Errorf("unmarshal files: %w", err)
		}
	}
	exp.Status = ExportStatus(status)
	exp.ComplianceValidated = compliance != 0
	exp.ArchiveKey = archiveKey.String
	exp.ArchiveName = archiveName.String
	exp.Error = msg.String
	exp.CreatedAt = parseTime(createdAt)
	if completedAt.Valid {
		exp.CompletedAt = parseTime(completedAt.String)
	}
	return &exp, nil
}

func (s *SQLiteStore) UpdateExportStatus(ctx context.Context, projectID, exportID string, status ExportStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mls_exports SET status = ?, error_message = ? WHERE project_id = ? AND id = ?`,
		string(status), nullableString(errMsg), projectID, exportID)
	if err != nil {
		return fmt.Errorf("update export status %s: %w", exportID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update export status %s: %w", exportID, ErrNotFound)
	}
	return nil
}

// --- helpers ---

func nullableString(value string) interface{} {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
