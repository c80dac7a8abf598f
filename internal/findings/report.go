package findings

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/notebookci/nbcheck/internal/validate"
	"github.com/notebookci/nbcheck/models"
)

// FromFailure converts one check failure on a notebook into finding records.
// An error_outputs failure yields one finding per offending output; the other
// kinds yield a single finding. Fingerprints are assigned here.
func FromFailure(repo, notebook, checkID string, f *validate.Failure) []models.Finding {
	if f == nil {
		return nil
	}

	base := models.Finding{
		Repo:     repo,
		Notebook: notebook,
		CheckID:  checkID,
		Kind:     string(f.Kind),
		Severity: models.SeverityForKind(string(f.Kind)),
		Status:   "open",
	}

	switch f.Kind {
	case validate.KindErrorOutputs:
		out := make([]models.Finding, 0, len(f.ErrorOutputs))
		for _, ref := range f.ErrorOutputs {
			rec := base
			rec.CellIndex = ref.CellIndex
			rec.OutputIndex = ref.OutputIndex
			rec.Message = ref.String()
			rec.Fingerprint = fingerprint(rec.Kind, rec.CheckID, rec.Notebook, ref.Ename, ref.Evalue)
			out = append(out, rec)
		}
		return out

	case validate.KindCellCardinality:
		rec := base
		rec.Message = f.Error()
		rec.Fingerprint = fingerprint(rec.Kind, rec.CheckID, rec.Notebook, f.Pattern)
		return []models.Finding{rec}

	case validate.KindValueMismatch:
		rec := base
		rec.CellIndex = f.CellIndex
		rec.Message = f.Error()
		rec.Actual = f.Actual
		rec.Expected = expectedJSON(f.Accepted)
		rec.Fingerprint = fingerprint(rec.Kind, rec.CheckID, rec.Notebook, f.Pattern, f.Actual)
		return []models.Finding{rec}
	}

	rec := base
	rec.Message = f.Error()
	rec.Fingerprint = fingerprint(rec.Kind, rec.CheckID, rec.Notebook, f.Error())
	return []models.Finding{rec}
}

// fingerprint hashes the durable identity features of a finding. Volatile
// details like cell indexes stay out so fingerprints survive notebook edits
// around the offending cell. The trade-off is deliberate: identical errors
// raised in several cells of one notebook persist as a single finding with
// the first cell's location, while the per-run result still lists each
// occurrence.
func fingerprint(parts ...string) string {
	norm := make([]string, len(parts))
	for i, p := range parts {
		norm[i] = strings.ToLower(collapseSpace(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(norm, "|")))
	return hex.EncodeToString(sum[:])
}

// expectedJSON renders the accepted value set as a JSON array string.
func expectedJSON(accepted []string) string {
	if len(accepted) == 0 {
		return "[]"
	}
	b, err := json.Marshal(accepted)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

func keyFor(kind, fp string) string {
	return strings.ToLower(strings.TrimSpace(kind)) + "|" + strings.ToLower(strings.TrimSpace(fp))
}

// Dedup keeps the first occurrence for each kind+fingerprint key.
func Dedup(in []models.Finding) []models.Finding {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Finding, 0, len(in))
	seen := map[string]struct{}{}
	for _, f := range in {
		if strings.TrimSpace(f.Kind) == "" || strings.TrimSpace(f.Fingerprint) == "" {
			continue
		}
		k := keyFor(f.Kind, f.Fingerprint)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}
