// Package storage persists an ApplicationAnalysis either as a
// self-describing JSON document or in a SQLite database.
package storage

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"legacylens/internal/apperrors"
	"legacylens/internal/model"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/analysis.schema.json
var analysisSchema []byte

const schemaURL = "https://legacylens.local/schema/analysis.schema.json"

// ErrUnsupportedVersion is returned when a document was written with a
// different major schema version.
var ErrUnsupportedVersion = errors.New("unsupported schema version")

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func documentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(analysisSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// isDatabasePath reports whether path names a SQLite database.
func isDatabasePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// Save writes the analysis to path. Database paths append a new analysis
// row; any other path is written as a JSON document, replacing the file.
func Save(a *model.ApplicationAnalysis, path string) error {
	if a == nil {
		return errors.New("save: nil analysis")
	}
	if isDatabasePath(path) {
		store, err := NewSQLiteStore(path)
		if err != nil {
			return apperrors.NewIOError("open", path, err)
		}
		defer store.Close()
		_, err = store.SaveAnalysis(context.Background(), a)
		return err
	}

	data, err := EncodeDocument(a)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.NewIOError("mkdir", dir, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.NewIOError("write", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apperrors.NewIOError("rename", path, err)
	}
	return nil
}

// Load reads an analysis saved by Save. Database paths return the most
// recently saved analysis.
func Load(path string) (*model.ApplicationAnalysis, error) {
	if isDatabasePath(path) {
		if _, err := os.Stat(path); err != nil {
			return nil, apperrors.NewIOError("stat", path, err)
		}
		store, err := NewSQLiteStore(path)
		if err != nil {
			return nil, apperrors.NewIOError("open", path, err)
		}
		defer store.Close()
		return store.LoadAnalysis(context.Background(), 0)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewIOError("read", path, err)
	}
	return DecodeDocument(data)
}

// EncodeDocument renders the analysis as indented JSON, stamping the
// current schema version when none is set.
func EncodeDocument(a *model.ApplicationAnalysis) ([]byte, error) {
	doc := *a
	if doc.SchemaVersion == "" {
		doc.SchemaVersion = model.SchemaVersion
	}
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis: %w", err)
	}
	return data, nil
}

// DecodeDocument checks the schema version, validates the document against
// the embedded schema and decodes it.
func DecodeDocument(data []byte) (*model.ApplicationAnalysis, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to parse analysis document: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("analysis document is not a JSON object")
	}
	version, _ := obj["schema_version"].(string)
	if majorOf(version) != majorOf(model.SchemaVersion) {
		return nil, fmt.Errorf("%w: %q (expected %s.x)", ErrUnsupportedVersion, version, majorOf(model.SchemaVersion))
	}

	schema, err := documentSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile analysis schema: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("analysis document schema validation failed: %w", err)
	}

	var a model.ApplicationAnalysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode analysis document: %w", err)
	}
	return &a, nil
}

func majorOf(version string) string {
	major, _, _ := strings.Cut(strings.TrimSpace(version), ".")
	return major
}
