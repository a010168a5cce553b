package artifact

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/models"
	"github.com/zulandar/quill/internal/repository"
	"gopkg.in/yaml.v3"
)

const fence = "---"

// UnitMeta is the front matter of a Unit document.
type UnitMeta struct {
	Title     string    `yaml:"title"`
	Work      string    `yaml:"work"`
	Number    int       `yaml:"number"`
	Kind      string    `yaml:"kind,omitempty"`
	Published time.Time `yaml:"published"`
	Words     int       `yaml:"words"`
	Summary   string    `yaml:"summary,omitempty"`
}

// WorkMeta is the front matter of a Work document.
type WorkMeta struct {
	Title        string   `yaml:"title"`
	Slug         string   `yaml:"slug"`
	Status       string   `yaml:"status"`
	Summary      string   `yaml:"summary,omitempty"`
	PlannedUnits int      `yaml:"planned_units"`
	Tags         []string `yaml:"tags,omitempty"`
	Genre        string   `yaml:"genre,omitempty"`
	Theme        string   `yaml:"theme,omitempty"`
	Variant      string   `yaml:"variant,omitempty"`
}

// EncodeUnit renders u as a markdown document.
func EncodeUnit(u models.Unit) ([]byte, error) {
	meta := UnitMeta{
		Title:     u.Title,
		Work:      u.WorkSlug,
		Number:    u.Number,
		Kind:      u.Kind,
		Published: u.PublishedAt.UTC(),
		Words:     u.WordCount,
		Summary:   u.Summary,
	}
	return encode(meta, u.Body)
}

// DecodeUnit parses a Unit document. Unknown keys and missing required
// keys are validation errors.
func DecodeUnit(data []byte) (models.Unit, error) {
	const op = "artifact: decode unit"
	var meta UnitMeta
	body, err := decode(op, data, &meta)
	if err != nil {
		return models.Unit{}, err
	}
	var missing []string
	if meta.Title == "" {
		missing = append(missing, "title")
	}
	if meta.Work == "" {
		missing = append(missing, "work")
	}
	if meta.Number < 1 {
		missing = append(missing, "number")
	}
	if meta.Published.IsZero() {
		missing = append(missing, "published")
	}
	if len(missing) > 0 {
		return models.Unit{}, errs.Validation(op, "missing required keys: %s", strings.Join(missing, ", "))
	}
	kind := meta.Kind
	if kind == "" {
		kind = models.UnitRegular
	}
	return models.Unit{
		WorkSlug:    meta.Work,
		Number:      meta.Number,
		Title:       meta.Title,
		Body:        body,
		Summary:     meta.Summary,
		Kind:        kind,
		WordCount:   meta.Words,
		PublishedAt: meta.Published,
	}, nil
}

// EncodeWork renders w as a markdown document whose body is the summary.
func EncodeWork(w models.Work) ([]byte, error) {
	meta := WorkMeta{
		Title:        w.Title,
		Slug:         w.Slug,
		Status:       w.Status,
		Summary:      w.Summary,
		PlannedUnits: w.PlannedUnits,
		Tags:         repository.Tags(w),
		Genre:        w.Genre,
		Theme:        w.Theme,
		Variant:      w.Variant,
	}
	return encode(meta, "")
}

// DecodeWork parses a Work document.
func DecodeWork(data []byte) (models.Work, error) {
	const op = "artifact: decode work"
	var meta WorkMeta
	if _, err := decode(op, data, &meta); err != nil {
		return models.Work{}, err
	}
	var missing []string
	if meta.Title == "" {
		missing = append(missing, "title")
	}
	if meta.Slug == "" {
		missing = append(missing, "slug")
	}
	if meta.Status == "" {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return models.Work{}, errs.Validation(op, "missing required keys: %s", strings.Join(missing, ", "))
	}
	if !models.ValidStatus(meta.Status) {
		return models.Work{}, errs.Validation(op, "unknown status %q", meta.Status)
	}
	if !repository.SlugPattern.MatchString(meta.Slug) {
		return models.Work{}, errs.Validation(op, "invalid slug %q", meta.Slug)
	}
	return models.Work{
		Slug:         meta.Slug,
		Title:        meta.Title,
		Summary:      meta.Summary,
		Status:       meta.Status,
		PlannedUnits: meta.PlannedUnits,
		Genre:        meta.Genre,
		Theme:        meta.Theme,
		Variant:      meta.Variant,
		Tags:         repository.EncodeTags(meta.Tags),
	}, nil
}

func encode(meta interface{}, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fence + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(meta); err != nil {
		return nil, errs.Validation("artifact: encode", "%v", err)
	}
	if err := enc.Close(); err != nil {
		return nil, errs.Validation("artifact: encode", "%v", err)
	}
	buf.WriteString(fence + "\n")
	if body != "" {
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

// decode splits the front matter from the body and strictly decodes it
// into meta.
func decode(op string, data []byte, meta interface{}) (string, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, fence+"\n") {
		return "", errs.Validation(op, "missing front matter")
	}
	rest := text[len(fence)+1:]
	var front, body string
	switch {
	case strings.HasPrefix(rest, fence+"\n"):
		body = rest[len(fence)+1:]
	case rest == fence:
	default:
		end := strings.Index(rest, "\n"+fence+"\n")
		if end < 0 {
			if !strings.HasSuffix(rest, "\n"+fence) {
				return "", errs.Validation(op, "unterminated front matter")
			}
			end = len(rest) - len(fence) - 1
			front = rest[:end]
			break
		}
		front = rest[:end]
		body = rest[end+len(fence)+2:]
	}

	dec := yaml.NewDecoder(strings.NewReader(front))
	dec.KnownFields(true)
	if err := dec.Decode(meta); err != nil && !errors.Is(err, io.EOF) {
		return "", errs.Validation(op, "front matter: %v", err)
	}
	return strings.TrimSuffix(body, "\n"), nil
}
