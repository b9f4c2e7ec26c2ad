// Package migrate moves inventory sets in and out of stockroom.
//
// Export writes the local display list (tombstones excluded) as JSONL,
// TOML or YAML. Import reads the same formats and adds every record
// through the mutation service, so imported items follow the normal
// online/offline path and get canonical ids from the remote store.
package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mschirtzinger/stockroom/internal/inventory"
	"github.com/mschirtzinger/stockroom/internal/types"
)

// ItemLister is the read side used by Export.
type ItemLister interface {
	GetAll(ctx context.Context) ([]*types.Item, error)
}

// Adder is the write side used by Import. inventory.Service implements it.
type Adder interface {
	Add(ctx context.Context, f types.Fields) (inventory.Result, error)
}

// ExportOptions configures an export.
type ExportOptions struct {
	Path   string // Output file path
	Format Format // Empty means infer from Path
	Backup bool   // Keep a copy of an existing file at Path
}

// ExportResult contains statistics about an export.
type ExportResult struct {
	Exported      int
	Pending       int
	BackupCreated string
}

// ImportOptions configures an import.
type ImportOptions struct {
	Path   string // Input file path
	Format Format // Empty means infer from Path
	DryRun bool   // Validate without adding
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	Read     int
	Synced   int
	Queued   int
	Deferred int
	Errors   []string
}

// Added is the number of records stored, whatever their outcome.
func (r *ImportResult) Added() int {
	return r.Synced + r.Queued + r.Deferred
}

// Export writes every non-tombstone item to opts.Path.
func Export(ctx context.Context, lister ItemLister, opts ExportOptions) (*ExportResult, error) {
	format, err := resolveFormat(opts.Format, opts.Path)
	if err != nil {
		return nil, err
	}

	items, err := lister.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}

	result := &ExportResult{}
	records := make([]Record, 0, len(items))
	for _, it := range items {
		if it.IsTombstone() {
			continue
		}
		if !it.Synced {
			result.Pending++
		}
		records = append(records, RecordFromItem(*it))
	}

	if opts.Backup {
		backup, err := backupFile(opts.Path)
		if err != nil {
			return nil, err
		}
		result.BackupCreated = backup
	}

	if err := writeFileAtomic(opts.Path, records, format); err != nil {
		return nil, err
	}
	result.Exported = len(records)
	return result, nil
}

// ReadFile decodes the records in path.
func ReadFile(path string, format Format) ([]Record, error) {
	format, err := resolveFormat(format, path)
	if err != nil {
		return nil, err
	}

	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	return Decode(file, format)
}

// Import adds every valid record in opts.Path through adder. A record that
// fails validation or storage is reported in Errors and the rest continue.
func Import(ctx context.Context, adder Adder, opts ImportOptions) (*ImportResult, error) {
	records, err := ReadFile(opts.Path, opts.Format)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Read: len(records)}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		f := rec.Fields()
		if err := f.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d (%s): %v", i+1, rec.Name, err))
			continue
		}
		if opts.DryRun {
			continue
		}

		res, err := adder.Add(ctx, f)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d (%s): %v", i+1, rec.Name, err))
			continue
		}
		switch res.Outcome {
		case inventory.OutcomeSynced:
			result.Synced++
		case inventory.OutcomeQueued:
			result.Queued++
		case inventory.OutcomeDeferred:
			result.Deferred++
		}
	}
	return result, nil
}

func resolveFormat(format Format, path string) (Format, error) {
	if format != "" {
		return ParseFormat(string(format))
	}
	return FormatFromPath(path)
}

// backupFile copies an existing file aside. A missing file needs no backup.
func backupFile(path string) (string, error) {
	// #nosec G304 - controlled path from CLI
	input, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s for backup: %w", path, err)
	}
	backupPath := path + ".backup." + time.Now().Format("20060102-150405")
	if err := os.WriteFile(backupPath, input, 0600); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}
	return backupPath, nil
}

// writeFileAtomic encodes records to a temp file and renames it over path.
func writeFileAtomic(path string, records []Record, format Format) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := Encode(file, records, format); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
