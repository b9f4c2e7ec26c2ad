package migrate

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/stockroom/internal/types"
)

// Format is an on-disk encoding of an item set.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatTOML  Format = "toml"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts a format name ("yml" and "json" included).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jsonl", "json", "ndjson":
		return FormatJSONL, nil
	case "toml":
		return FormatTOML, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: unknown format %q (want jsonl, toml or yaml)", types.ErrInvalidArgument, s)
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: cannot infer format of %s, pass --format", types.ErrInvalidArgument, path)
	}
	return ParseFormat(ext)
}

// Record is one exported item. Pending is informational on export and
// ignored on import.
type Record struct {
	ID       string `json:"id,omitempty" toml:"id,omitempty" yaml:"id,omitempty"`
	Name     string `json:"name" toml:"name" yaml:"name"`
	Quantity int    `json:"quantity" toml:"quantity" yaml:"quantity"`
	Category string `json:"category" toml:"category" yaml:"category"`
	Pending  string `json:"pending,omitempty" toml:"pending,omitempty" yaml:"pending,omitempty"`
}

// Fields returns the business fields of the record.
func (r Record) Fields() types.Fields {
	return types.Fields{Name: r.Name, Quantity: r.Quantity, Category: r.Category}
}

// RecordFromItem converts a stored item. Synced items omit the pending tag.
func RecordFromItem(it types.Item) Record {
	rec := Record{
		ID:       it.ID,
		Name:     it.Name,
		Quantity: it.Quantity,
		Category: it.Category,
	}
	if it.Pending != types.PendingNone {
		rec.Pending = string(it.Pending)
	}
	return rec
}

// document wraps records for TOML and YAML, which need a top-level table.
type document struct {
	Items []Record `toml:"items" yaml:"items"`
}

// Encode writes records to w in the given format.
func Encode(w io.Writer, records []Record, format Format) error {
	switch format {
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
			}
		}
		return nil

	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(document{Items: records}); err != nil {
			return fmt.Errorf("failed to encode TOML: %w", err)
		}
		return nil

	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(document{Items: records}); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: unknown format %q", types.ErrInvalidArgument, format)
}

// Decode reads records from r in the given format.
func Decode(r io.Reader, format Format) ([]Record, error) {
	switch format {
	case FormatJSONL:
		return decodeJSONL(r)

	case FormatTOML:
		var doc document
		if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("invalid TOML: %w", err)
		}
		return doc.Items, nil

	case FormatYAML:
		var doc document
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		return doc.Items, nil
	}
	return nil, fmt.Errorf("%w: unknown format %q", types.ErrInvalidArgument, format)
}

// decodeJSONL reads one record per line, skipping blank lines.
func decodeJSONL(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSONL: %w", err)
	}
	return records, nil
}
