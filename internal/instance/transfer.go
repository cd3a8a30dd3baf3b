// ABOUTME: Whole-store export and atomic import of engine images
// ABOUTME: Import migrates the candidate engine before it replaces the live one

package instance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/shopdb/internal/image"
)

// ErrImportFailed wraps every import failure. The previous engine stays live.
var ErrImportFailed = errors.New("import failed")

// Export returns the image of the live engine.
func (i *Instance) Export(ctx context.Context) ([]byte, error) {
	data, err := i.session.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("exporting %s: %w", i.profile.Identity, err)
	}
	return data, nil
}

// ExportFilename is the default download name of an export.
func (i *Instance) ExportFilename() string { return i.profile.ExportFilename }

// Import replaces the live engine with the image in data. The candidate is
// brought up to the instance schema first; any failure closes it and
// leaves the live engine untouched. An envelope exported by another
// instance identity is rejected. A successful import schedules one flush.
func (i *Instance) Import(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty image", ErrImportFailed)
	}
	// Raw SQLite files carry no identity and are accepted by either instance.
	if h, err := image.Inspect(data); err == nil && h.Magic != "" && h.Identity != string(i.profile.Identity) {
		return fmt.Errorf("%w: image belongs to the %s instance, not %s", ErrImportFailed, h.Identity, i.profile.Identity)
	}

	db, err := image.Deserialize(ctx, data)
	if err != nil {
		i.logger.Warn("import rejected", "error", err)
		return fmt.Errorf("%w: %w", ErrImportFailed, err)
	}
	if err := i.session.Prepare(ctx, db); err != nil {
		db.Close()
		i.logger.Warn("import migration failed", "error", err)
		return fmt.Errorf("%w: %w", ErrImportFailed, err)
	}
	if err := i.session.Replace(db); err != nil {
		db.Close()
		return fmt.Errorf("%w: %w", ErrImportFailed, err)
	}

	i.coord.ScheduleFlush()
	i.logger.Info("imported image", "size", len(data))
	return nil
}

// Backup stores a backup snapshot now and returns its key.
func (i *Instance) Backup(ctx context.Context) (string, error) {
	return i.coord.BackupNow(ctx)
}

// Backups lists this instance's backup keys, oldest first.
func (i *Instance) Backups(ctx context.Context) ([]string, error) {
	return i.coord.Backups(ctx)
}

// RestoreBackup imports the backup stored under key.
func (i *Instance) RestoreBackup(ctx context.Context, key string) error {
	if !strings.HasPrefix(key, i.coord.BackupPrefix()) {
		return fmt.Errorf("%w: %s is not a backup of %s", ErrImportFailed, key, i.profile.Identity)
	}
	data, ok, err := i.blocks.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: reading backup: %w", ErrImportFailed, err)
	}
	if !ok {
		return fmt.Errorf("%w: backup %s not found", ErrImportFailed, key)
	}
	return i.Import(ctx, data)
}
