package api

import (
	"context"

	"github.com/starford/imagesorter/internal/models"
)

// RuleStore is the rule table as the API edits it.
type RuleStore interface {
	Get() models.RuleSet
	ReplaceAndSave(rs models.RuleSet) error
	Add(r models.Rule) (int, models.Rule, error)
	Update(i int, r models.Rule) (models.Rule, error)
	Remove(i int) error
}

// Processor runs the sorting pipeline for one note.
type Processor interface {
	Process(ctx context.Context, notePath string) (*models.TargetAsset, error)
}

// RunStore exposes recorded runs.
type RunStore interface {
	Get(id string) (*models.Run, error)
	List(limit int, outcome string) ([]models.Run, error)
	Counts() (map[string]int, error)
}

// Vault is the subset of storage the API reads from.
type Vault interface {
	Read(path string) ([]byte, error)
	ListFolders() ([]string, error)
}

// Deps groups the collaborators the handlers need. Runs may be nil when
// the journal is disabled.
type Deps struct {
	Rules  RuleStore
	Sorter Processor
	Runs   RunStore
	Vault  Vault
}
