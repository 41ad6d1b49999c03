package search

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"curator/internal/domain"
	"curator/internal/port"
)

// overfetch compensates for post-KNN filtering (covers, username allow-list)
// shrinking the result set below k.
const overfetch = 4

// SQLiteVec is a sqlite-vec backed nearest-neighbor search. The KNN runs in
// SQL against a vec0 virtual table; filters are applied on the joined
// metadata after the scan.
type SQLiteVec struct {
	db  *sql.DB
	dim int
}

// NewSQLiteVec opens (or creates) the vector database at path with the
// given embedding dimension.
func NewSQLiteVec(path string, dim int) (*SQLiteVec, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	s := &SQLiteVec{db: db, dim: dim}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteVec) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS images (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    image_id TEXT UNIQUE NOT NULL,
    post_id TEXT DEFAULT '',
    username TEXT DEFAULT '',
    image_path TEXT DEFAULT '',
    is_cover_slide INTEGER DEFAULT 0,
    cover_slide_text TEXT DEFAULT '',
    uniformity_score REAL DEFAULT 0,
    aesthetic TEXT DEFAULT '',
    colors TEXT DEFAULT '[]',
    season TEXT DEFAULT '',
    created_at INTEGER DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_images_username ON images(username);
`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	vecSchema := fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS vec_images USING vec0(
    image_rowid INTEGER PRIMARY KEY,
    embedding FLOAT[%d]
);
`, s.dim)
	_, err := s.db.Exec(vecSchema)
	return err
}

// Index inserts or replaces images and their vectors. Images without an
// embedding are skipped.
func (s *SQLiteVec) Index(ctx context.Context, images []domain.ImageRecord) error {
	for _, img := range images {
		if len(img.Embedding) == 0 {
			continue
		}
		if len(img.Embedding) != s.dim {
			return fmt.Errorf("embedding dimension mismatch for %s: expected %d, got %d", img.ID, s.dim, len(img.Embedding))
		}
		colors, err := json.Marshal(img.Colors)
		if err != nil {
			return err
		}
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO images (image_id, post_id, username, image_path, is_cover_slide,
			                    cover_slide_text, uniformity_score, aesthetic, colors, season, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(image_id) DO UPDATE SET
			    post_id=excluded.post_id, username=excluded.username, image_path=excluded.image_path,
			    is_cover_slide=excluded.is_cover_slide, cover_slide_text=excluded.cover_slide_text,
			    uniformity_score=excluded.uniformity_score, aesthetic=excluded.aesthetic,
			    colors=excluded.colors, season=excluded.season, created_at=excluded.created_at`,
			img.ID, img.PostID, domain.CanonicalUsername(img.Username), img.ImagePath,
			img.IsCoverSlide, img.CoverSlideText, img.UniformityScore, img.Aesthetic,
			string(colors), img.Season, img.CreatedAt.Unix())
		if err != nil {
			return err
		}

		var rowid int64
		if id, err := res.LastInsertId(); err == nil && id != 0 {
			rowid = id
		}
		if rowid == 0 {
			if err := s.db.QueryRowContext(ctx, "SELECT id FROM images WHERE image_id = ?", img.ID).Scan(&rowid); err != nil {
				return err
			}
		}

		blob, err := sqlite_vec.SerializeFloat32(img.Embedding)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, "DELETE FROM vec_images WHERE image_rowid = ?", rowid); err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO vec_images (image_rowid, embedding) VALUES (?, ?)", rowid, blob); err != nil {
			return err
		}
	}
	return nil
}

// Nearest returns up to k images closest to vector.
func (s *SQLiteVec) Nearest(ctx context.Context, vector []float32, k int, opts port.NeighborOptions) ([]domain.ImageRecord, error) {
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, &domain.RetrievalError{Cause: err}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.image_rowid, v.embedding
		FROM vec_images v
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`, blob, k*overfetch)
	if err != nil {
		return nil, &domain.RetrievalError{Cause: err}
	}
	defer rows.Close()

	type hit struct {
		rowid     int64
		embedding []float32
	}
	var hits []hit
	for rows.Next() {
		var h hit
		var emb []byte
		if err := rows.Scan(&h.rowid, &emb); err != nil {
			return nil, &domain.RetrievalError{Cause: err}
		}
		h.embedding = deserializeFloat32(emb)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.RetrievalError{Cause: err}
	}

	var allow map[string]struct{}
	if len(opts.Usernames) > 0 {
		allow = make(map[string]struct{}, len(opts.Usernames))
		for _, u := range opts.Usernames {
			allow[domain.CanonicalUsername(u)] = struct{}{}
		}
	}

	out := make([]domain.ImageRecord, 0, k)
	for _, h := range hits {
		if len(out) >= k {
			break
		}
		img, err := s.imageByRowid(ctx, h.rowid)
		if err != nil {
			return nil, &domain.RetrievalError{Cause: err}
		}
		if !opts.IncludeCovers && img.IsCover() {
			continue
		}
		if allow != nil {
			if _, ok := allow[img.Username]; !ok {
				continue
			}
		}
		img.Embedding = h.embedding
		out = append(out, img)
	}
	return out, nil
}

func (s *SQLiteVec) imageByRowid(ctx context.Context, rowid int64) (domain.ImageRecord, error) {
	var img domain.ImageRecord
	var colors string
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT image_id, post_id, username, image_path, is_cover_slide,
		       cover_slide_text, uniformity_score, aesthetic, colors, season, created_at
		FROM images WHERE id = ?`, rowid).Scan(
		&img.ID, &img.PostID, &img.Username, &img.ImagePath, &img.IsCoverSlide,
		&img.CoverSlideText, &img.UniformityScore, &img.Aesthetic, &colors, &img.Season, &createdAt)
	if err != nil {
		return img, err
	}
	if err := json.Unmarshal([]byte(colors), &img.Colors); err != nil {
		img.Colors = nil
	}
	img.CreatedAt = time.Unix(createdAt, 0).UTC()
	return img, nil
}

// Close closes the underlying database.
func (s *SQLiteVec) Close() error {
	return s.db.Close()
}

func deserializeFloat32(blob []byte) []float32 {
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}
