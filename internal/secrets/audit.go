package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/BurntSushi/toml"
	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksregexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// AuditFinding is one credential hit from the deep gitleaks scan. The match
// is reduced to a short preview so reports never re-leak the secret.
type AuditFinding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`

	// Location is the dotted context path of the leaf the finding was made
	// in, when the scan ran over a context map.
	Location string `json:"location,omitempty"`

	Line    int    `json:"line"`
	Preview string `json:"preview"`
}

// Allowlist suppresses known-false-positive findings during audits.
type Allowlist struct {
	Paths     []string
	Regexes   []string
	Stopwords []string
}

// Detector runs the gitleaks ruleset over session context. It is heavier
// than the regexp scrubber and reserved for audits.
type Detector struct {
	detector *detect.Detector
}

// NewDetector builds a detector on the default gitleaks config, optionally
// narrowed by an allowlist.
func NewDetector(allow *Allowlist) (*Detector, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, err
	}
	if allow != nil {
		if err := applyAllowlist(&d.Config, allow); err != nil {
			return nil, err
		}
	}
	return &Detector{detector: d}, nil
}

// Audit scans one text for credentials.
func (d *Detector) Audit(content string) []AuditFinding {
	findings := d.detector.DetectString(content)
	out := make([]AuditFinding, 0, len(findings))
	for _, f := range findings {
		out = append(out, AuditFinding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
			Preview:     previewSecret(f.Secret),
		})
	}
	return out
}

// AuditContext scans every string leaf of a context map. Findings carry the
// dotted path of the leaf they were found in.
func (d *Detector) AuditContext(m map[string]interface{}) []AuditFinding {
	var out []AuditFinding
	walkStrings("", m, func(path, value string) {
		for _, f := range d.Audit(value) {
			f.Location = path
			out = append(out, f)
		}
	})
	return out
}

// walkStrings visits string leaves in sorted key order so audit output is
// deterministic.
func walkStrings(prefix string, v interface{}, fn func(path, value string)) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkStrings(joinPath(prefix, k), val[k], fn)
		}
	case []interface{}:
		for i, item := range val {
			walkStrings(fmt.Sprintf("%s[%d]", prefix, i), item, fn)
		}
	case string:
		fn(prefix, val)
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// previewSecret keeps the first four characters of a match. The rest is
// dropped before findings leave the package.
func previewSecret(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}

// applyAllowlist merges allowlist patterns into the gitleaks config.
func applyAllowlist(cfg *gitleaksconfig.Config, allow *Allowlist) error {
	entry := &gitleaksconfig.Allowlist{
		Description: "pipevet audit allowlist",
	}

	for _, pattern := range allow.Paths {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: path pattern %q: %v", ErrInvalidRegex, pattern, err)
		}
		entry.Paths = append(entry.Paths, (*gitleaksregexp.Regexp)(re))
	}

	for _, pattern := range allow.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: content pattern %q: %v", ErrInvalidRegex, pattern, err)
		}
		entry.Regexes = append(entry.Regexes, (*gitleaksregexp.Regexp)(re))
	}

	entry.StopWords = append(entry.StopWords, allow.Stopwords...)

	cfg.Allowlists = append(cfg.Allowlists, entry)
	return nil
}

// LoadAllowlist merges the project .gitleaks.toml with an optional user
// allowlist file. Missing files are skipped; malformed ones error.
func LoadAllowlist(projectDir, userPath string) (*Allowlist, error) {
	merged := &Allowlist{
		Paths:     []string{},
		Regexes:   []string{},
		Stopwords: []string{},
	}

	if projectDir != "" {
		projectFile := filepath.Join(projectDir, ".gitleaks.toml")
		if err := mergeTOML(merged, projectFile); err != nil {
			return nil, err
		}
	}

	if userPath != "" {
		if err := mergeTOML(merged, userPath); err != nil {
			return nil, err
		}
	}

	return merged, nil
}

// mergeTOML loads one allowlist file into dst. A missing file is not an
// error.
func mergeTOML(dst *Allowlist, path string) error {
	var file struct {
		Allowlist struct {
			Paths     []string `toml:"paths"`
			Regexes   []string `toml:"regexes"`
			Stopwords []string `toml:"stopwords"`
		} `toml:"allowlist"`
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if _, err := toml.DecodeFile(path, &file); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range append(file.Allowlist.Paths, file.Allowlist.Regexes...) {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%w: pattern %q in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}

	dst.Paths = append(dst.Paths, file.Allowlist.Paths...)
	dst.Regexes = append(dst.Regexes, file.Allowlist.Regexes...)
	dst.Stopwords = append(dst.Stopwords, file.Allowlist.Stopwords...)
	return nil
}
