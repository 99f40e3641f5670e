// Package knowledge implements the product knowledge base the reply
// pipeline researches against: an SQLite full-text index over product
// docs, plus a model-backed lookup that turns retrieved excerpts into
// an answer for one query.
package knowledge

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Doc is one knowledge base document.
type Doc struct {
	Title   string
	Content string
}

// KB is the SQLite-backed document index.
type KB struct {
	db      *sql.DB
	maxDocs int
}

// Open opens (and if needed creates) the knowledge base at path.
func Open(path string, maxDocs int) (*KB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, eris.Wrap(err, "knowledge: open database")
	}

	if maxDocs <= 0 {
		maxDocs = 5
	}
	kb := &KB{db: db, maxDocs: maxDocs}
	if err := kb.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return kb, nil
}

func (kb *KB) migrate() error {
	_, err := kb.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS kb_docs USING fts5(title, content)`)
	if err != nil {
		return eris.Wrap(err, "knowledge: create fts table")
	}
	return nil
}

// Close closes the underlying database.
func (kb *KB) Close() error {
	return kb.db.Close()
}

// Add indexes one document.
func (kb *KB) Add(ctx context.Context, doc Doc) error {
	_, err := kb.db.ExecContext(ctx,
		`INSERT INTO kb_docs (title, content) VALUES (?, ?)`,
		doc.Title, doc.Content,
	)
	if err != nil {
		return eris.Wrap(err, "knowledge: insert doc")
	}
	return nil
}

// LoadDir indexes every .md and .txt file under dir. The file name
// becomes the document title. Returns the number of documents loaded.
func (kb *KB) LoadDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, eris.Wrap(err, "knowledge: read docs dir")
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".md" && ext != ".txt" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return loaded, eris.Wrapf(err, "knowledge: read %s", entry.Name())
		}
		title := strings.TrimSuffix(entry.Name(), ext)
		if err := kb.Add(ctx, Doc{Title: title, Content: string(data)}); err != nil {
			return loaded, err
		}
		loaded++
	}

	zap.L().Info("knowledge: loaded documents",
		zap.String("dir", dir),
		zap.Int("count", loaded),
	)
	return loaded, nil
}

// Count returns the number of indexed documents.
func (kb *KB) Count(ctx context.Context) (int, error) {
	var n int
	if err := kb.db.QueryRowContext(ctx, `SELECT count(*) FROM kb_docs`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "knowledge: count docs")
	}
	return n, nil
}

// Search runs a full-text search and returns the best-ranked documents.
func (kb *KB) Search(ctx context.Context, query string) ([]Doc, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := kb.db.QueryContext(ctx,
		`SELECT title, content FROM kb_docs WHERE kb_docs MATCH ? ORDER BY rank LIMIT ?`,
		match, kb.maxDocs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "knowledge: search")
	}
	defer rows.Close()

	var docs []Doc
	for rows.Next() {
		var d Doc
		if err := rows.Scan(&d.Title, &d.Content); err != nil {
			return nil, eris.Wrap(err, "knowledge: scan doc")
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "knowledge: iterate docs")
	}
	return docs, nil
}

// ftsQuery turns free text into an FTS5 match expression. Each token is
// quoted so punctuation in the query cannot break the match syntax, and
// tokens are ORed so partial matches still rank.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'?!.,:;()`)
		if f == "" {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " OR ")
}
