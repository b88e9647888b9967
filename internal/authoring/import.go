package authoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/pavelanni/skillforge/internal/model"
)

// ImportStatus is the outcome of importing one quiz file.
type ImportStatus string

const (
	ImportCreated   ImportStatus = "imported"
	ImportUnchanged ImportStatus = "unchanged"
	ImportChanged   ImportStatus = "changed"
)

// ImportResult reports what happened to an imported file.
type ImportResult struct {
	Path   string       `json:"path"`
	Status ImportStatus `json:"status"`
	Result *Result      `json:"result,omitempty"`
}

// Import authors a quiz from a JSON quiz file. Files whose content was
// already imported are skipped. A file that was imported before under the
// same path but has changed since is skipped too, unless allowChanged is set.
func (s *Service) Import(ctx context.Context, path string, data []byte, allowChanged bool) (ImportResult, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	res := ImportResult{Path: path}

	stored, err := s.store.GetImportedFileHash(path)
	if err != nil {
		return res, fmt.Errorf("check import status for %s: %w", path, err)
	}
	seen, err := s.store.HasImportedHash(hash)
	if err != nil {
		return res, fmt.Errorf("check import status for %s: %w", path, err)
	}
	if stored == hash || seen {
		slog.InfoContext(ctx, "quiz file unchanged, skipping", "path", path)
		res.Status = ImportUnchanged
		return res, nil
	}
	if stored != "" && !allowChanged {
		slog.WarnContext(ctx, "quiz file changed since last import, skipping", "path", path)
		res.Status = ImportChanged
		return res, nil
	}

	var draft model.QuizDraft
	if err := json.Unmarshal(data, &draft); err != nil {
		return res, invalidf("parse %s: %v", path, err)
	}
	created, err := s.Create(ctx, draft, Source{Type: SourceImport, Name: filepath.Base(path)})
	if err != nil {
		return res, err
	}
	if err := s.store.SetImportedFileHash(path, hash); err != nil {
		return res, fmt.Errorf("record import for %s: %w", path, err)
	}

	res.Status = ImportCreated
	res.Result = &created
	return res, nil
}
