package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joocy75-hash/ai-Agent-sub002/pkg/db"
)

// Preset declares a bot instance in the YAML presets file.
type Preset struct {
	ID            string         `yaml:"id"`
	UserID        string         `yaml:"user_id"`
	Symbol        string         `yaml:"symbol"`
	Strategy      string         `yaml:"strategy"`
	AllocationPct float64        `yaml:"allocation_pct"`
	Parameters    map[string]any `yaml:"parameters"`
	AutoStart     bool           `yaml:"auto_start"`
}

// PresetFile is the top-level YAML structure.
type PresetFile struct {
	Instances []Preset `yaml:"instances"`
}

// LoadPresets reads bot instance presets from a YAML file.
func LoadPresets(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file PresetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}

	for i, p := range file.Instances {
		if p.ID == "" || p.UserID == "" || p.Symbol == "" {
			return nil, fmt.Errorf("preset %d: id, user_id and symbol are required", i)
		}
		if _, err := New(p.Strategy, p.Parameters, Deps{Symbol: p.Symbol}); err != nil {
			return nil, fmt.Errorf("preset %s: %w", p.ID, err)
		}
	}
	return file.Instances, nil
}

// SyncPresetsToDB upserts presets into the bot_instances table.
func SyncPresetsToDB(ctx context.Context, database *db.Database, presets []Preset) error {
	for _, p := range presets {
		paramsJSON, err := json.Marshal(p.Parameters)
		if err != nil {
			return fmt.Errorf("marshal parameters for %s: %w", p.ID, err)
		}
		alloc := p.AllocationPct
		if alloc <= 0 {
			alloc = 10
		}
		row := db.InstanceRow{
			ID:            p.ID,
			UserID:        p.UserID,
			Symbol:        p.Symbol,
			StrategyCode:  p.Strategy,
			Parameters:    string(paramsJSON),
			AllocationPct: alloc,
			Status:        "stopped",
		}
		if err := database.UpsertInstance(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
