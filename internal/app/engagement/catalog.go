package engagement

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/habitnest/habitnest/internal/domain"
)

// catalogFile is the on-disk quest catalog:
//
//	[[quest]]
//	id = "daily-hydrate"
//	title = "Stay hydrated"
//	type = "daily"
//	trigger_type = "hydrate_goal"
//	target_progress = 1500
//	reward_type = "coins"
//	reward_amount = 20
//	is_active = true
type catalogFile struct {
	Quests []domain.Quest `toml:"quest"`
}

// LoadCatalog reads quest definitions from a TOML file.
// Unknown keys are rejected so typos do not silently drop fields.
func LoadCatalog(path string) ([]domain.Quest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(string(data))
}

// ParseCatalog decodes a TOML quest catalog.
func ParseCatalog(data string) ([]domain.Quest, error) {
	var f catalogFile
	md, err := toml.Decode(data, &f)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, domain.NewValidationError(undecoded[0].String(), "unknown key")
	}
	if len(f.Quests) == 0 {
		return nil, domain.NewValidationError("quest", "catalog defines no quests")
	}
	return f.Quests, nil
}
