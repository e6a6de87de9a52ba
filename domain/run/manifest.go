package run

import (
	"fmt"

	"glyphscore/domain/core"
)

// Fingerprint captures every input a batch result depends on.
// Reproducing a published statistic requires all of these.
type Fingerprint struct {
	RuleSetHash core.RuleSetHash `json:"rule_set_hash"`
	CorpusHash  core.CorpusHash  `json:"corpus_hash"`
	GroupBy     string           `json:"group_by"`
	Seed        int64            `json:"seed"`
	NPerm       int              `json:"n_perm"`
	NBoot       int              `json:"n_boot"`
	K           int              `json:"k"`
	MinCount    int              `json:"min_count"`
	MaxIters    int              `json:"max_iters"`
	Features    []string         `json:"features"`
	CodeVersion string           `json:"code_version"`
	Fingerprint core.Hash        `json:"fingerprint"` // Hash of all above
}

// Seal computes the combined fingerprint hash
func (f Fingerprint) Seal() Fingerprint {
	f.Fingerprint = core.ComputeOrderedHash([]string{
		f.RuleSetHash.String(),
		f.CorpusHash.String(),
		f.GroupBy,
		fmt.Sprintf("%d", f.Seed),
		fmt.Sprintf("%d/%d", f.NPerm, f.NBoot),
		fmt.Sprintf("%d/%d/%d", f.K, f.MinCount, f.MaxIters),
		fmt.Sprintf("%v", f.Features),
		f.CodeVersion,
	})
	return f
}

// Manifest is the audit record written alongside a batch step's artifacts
type Manifest struct {
	RunID       core.RunID     `json:"run_id" db:"run_id"`
	RuleSetName string         `json:"rule_set_name" db:"rule_set_name"`
	CorpusName  string         `json:"corpus_name" db:"corpus_name"`
	Tokens      int            `json:"tokens" db:"tokens"`
	Fingerprint Fingerprint    `json:"fingerprint" db:"-"`
	CreatedAt   core.Timestamp `json:"created_at" db:"-"`
}

// NewManifest creates a manifest with a fresh run id
func NewManifest(ruleSetName, corpusName string, tokens int, fp Fingerprint) *Manifest {
	return &Manifest{
		RunID:       core.NewRunID(),
		RuleSetName: ruleSetName,
		CorpusName:  corpusName,
		Tokens:      tokens,
		Fingerprint: fp.Seal(),
		CreatedAt:   core.Now(),
	}
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewConfigError("run_manifest", "run_id cannot be empty")
	}
	if m.Fingerprint.RuleSetHash == "" {
		return core.NewConfigError("run_manifest", "rule_set_hash cannot be empty")
	}
	if m.Fingerprint.CorpusHash == "" {
		return core.NewConfigError("run_manifest", "corpus_hash cannot be empty")
	}
	if m.Fingerprint.CodeVersion == "" {
		return core.NewConfigError("run_manifest", "code_version cannot be empty")
	}
	return nil
}
