package library

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"curator/internal/domain"
)

// Dump is a corpus export ready for ingestion.
type Dump struct {
	Posts  []domain.PostRecord
	Images []domain.ImageRecord
}

type dumpFile struct {
	Posts  []dumpPost  `json:"posts"`
	Images []dumpImage `json:"images"`
}

type dumpPost struct {
	PostID         string    `json:"post_id"`
	Username       string    `json:"username"`
	EngagementRate float64   `json:"engagement_rate"`
	CreatedAt      time.Time `json:"created_at"`
}

type dumpImage struct {
	ID              string          `json:"id"`
	PostID          string          `json:"post_id"`
	Username        string          `json:"username"`
	ImagePath       string          `json:"image_path"`
	Embedding       json.RawMessage `json:"embedding"`
	IsCoverSlide    bool            `json:"is_cover_slide"`
	CoverSlideText  string          `json:"cover_slide_text"`
	UniformityScore float64         `json:"uniformity_score"`
	Aesthetic       string          `json:"aesthetic"`
	Colors          []string        `json:"colors"`
	Season          string          `json:"season"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ReadDump parses a corpus export. Embeddings arrive either as JSON arrays
// or as pgvector-style strings ("[1,2,3]", "(1,2,3)"); both are decoded
// here, once, at the ingestion boundary.
func ReadDump(path string) (*Dump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file dumpFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse dump: %w", err)
	}

	dump := &Dump{
		Posts:  make([]domain.PostRecord, 0, len(file.Posts)),
		Images: make([]domain.ImageRecord, 0, len(file.Images)),
	}
	for _, p := range file.Posts {
		dump.Posts = append(dump.Posts, domain.PostRecord{
			PostID:         p.PostID,
			Username:       domain.CanonicalUsername(p.Username),
			EngagementRate: p.EngagementRate,
			CreatedAt:      p.CreatedAt,
		})
	}
	for _, img := range file.Images {
		embedding, err := DecodeEmbedding(img.Embedding)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", img.ID, err)
		}
		dump.Images = append(dump.Images, domain.ImageRecord{
			ID:              img.ID,
			PostID:          img.PostID,
			Username:        domain.CanonicalUsername(img.Username),
			ImagePath:       img.ImagePath,
			Embedding:       embedding,
			IsCoverSlide:    img.IsCoverSlide,
			CoverSlideText:  img.CoverSlideText,
			UniformityScore: img.UniformityScore,
			Aesthetic:       img.Aesthetic,
			Colors:          img.Colors,
			Season:          img.Season,
			CreatedAt:       img.CreatedAt,
		})
	}
	return dump, nil
}

// DecodeEmbedding turns the wire forms of an embedding into a vector:
// a JSON number array, a JSON string holding "[1,2,3]" or "(1,2,3)", or
// null/absent (no embedding).
func DecodeEmbedding(raw json.RawMessage) ([]float32, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var direct []float32
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("undecodable embedding: %s", truncate(string(raw), 40))
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "[" + s[1:len(s)-1] + "]"
	}
	var parsed []float32
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return nil, fmt.Errorf("undecodable embedding string: %s", truncate(s, 40))
	}
	return parsed, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
