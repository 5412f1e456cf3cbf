// Package storage persists pipeline artifacts on local disk: raw text,
// table renderings, figure text, and the final chunk sets.
package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/structify/rfpchunk/internal/document"
)

const (
	tablesDir = "tables"
	imagesDir = "images"
	textDir   = "text"
	chunksDir = "chunks"
)

// Store writes artifacts under a base directory, one subdirectory per
// artifact kind. Artifact writes are best effort; chunk writes are not.
type Store struct {
	base string
	md   goldmark.Markdown
	log  *slog.Logger
}

// NewStore creates the artifact directory layout under base.
func NewStore(base string, log *slog.Logger) (*Store, error) {
	for _, dir := range []string{tablesDir, imagesDir, textDir, chunksDir} {
		if err := os.MkdirAll(filepath.Join(base, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", dir, err)
		}
	}
	return &Store{
		base: base,
		md:   goldmark.New(goldmark.WithExtensions(extension.Table)),
		log:  log,
	}, nil
}

// SaveRawText persists the document's extracted plain text.
func (s *Store) SaveRawText(documentID, text string) (string, error) {
	path := filepath.Join(s.base, textDir, safeName(documentID)+".txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("save raw text: %w", err)
	}
	return path, nil
}

// SaveTable writes a table as CSV plus an HTML rendering and records
// the CSV path on the ref. Either write failing is logged, not fatal.
func (s *Store) SaveTable(documentID string, t *document.TableRef) {
	stem := fmt.Sprintf("%s_table_%d", safeName(documentID), t.Index)

	csvPath := filepath.Join(s.base, tablesDir, stem+".csv")
	if err := writeCSV(csvPath, t.Grid); err != nil {
		s.log.Warn("table csv not saved", "document_id", documentID, "table", t.Index, "error", err)
	} else {
		t.ArtifactPath = csvPath
	}

	htmlPath := filepath.Join(s.base, tablesDir, stem+".html")
	if err := s.writeHTML(htmlPath, t.Grid); err != nil {
		s.log.Warn("table html not saved", "document_id", documentID, "table", t.Index, "error", err)
	}
}

// SaveFigureText persists the text recovered from a figure and records
// the path on the ref.
func (s *Store) SaveFigureText(documentID string, img *document.ImageRef) {
	if strings.TrimSpace(img.Content) == "" {
		return
	}
	path := filepath.Join(s.base, imagesDir, fmt.Sprintf("%s_figure_%d.txt", safeName(documentID), img.Index))
	if err := os.WriteFile(path, []byte(img.Content), 0o644); err != nil {
		s.log.Warn("figure text not saved", "document_id", documentID, "figure", img.Index, "error", err)
		return
	}
	img.ArtifactPath = path
}

// SaveChunks persists the final chunk set as a JSON array.
func (s *Store) SaveChunks(documentID string, chunks []document.Chunk) (string, error) {
	path := filepath.Join(s.base, chunksDir, safeName(documentID)+"_chunks.json")

	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal chunks: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save chunks: %w", err)
	}
	return path, nil
}

// LoadChunks reads a previously saved chunk set.
func (s *Store) LoadChunks(documentID string) ([]document.Chunk, error) {
	path := filepath.Join(s.base, chunksDir, safeName(documentID)+"_chunks.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	var chunks []document.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("decode chunks: %w", err)
	}
	return chunks, nil
}

func writeCSV(path string, grid [][]string) error {
	if len(grid) == 0 {
		return fmt.Errorf("empty table grid")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(grid); err != nil {
		return err
	}
	return f.Close()
}

// writeHTML renders the grid through a markdown pipe table so the HTML
// artifact matches what retrieval UIs already display.
func (s *Store) writeHTML(path string, grid [][]string) error {
	if len(grid) == 0 {
		return fmt.Errorf("empty table grid")
	}
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(gridMarkdown(grid)), &buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func gridMarkdown(grid [][]string) string {
	cols := 0
	for _, row := range grid {
		if len(row) > cols {
			cols = len(row)
		}
	}

	var b strings.Builder
	writeRow := func(row []string) {
		b.WriteString("|")
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(row) {
				cell = strings.ReplaceAll(row[i], "|", "\\|")
			}
			b.WriteString(" " + cell + " |")
		}
		b.WriteString("\n")
	}

	writeRow(grid[0])
	b.WriteString("|" + strings.Repeat(" --- |", cols) + "\n")
	for _, row := range grid[1:] {
		writeRow(row)
	}
	return b.String()
}

func safeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "document"
	}
	return b.String()
}
