package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"drink-detector/internal/config"
	"drink-detector/internal/features"
	"drink-detector/internal/forest"
	"drink-detector/internal/models"
)

// ArtifactVersion is bumped whenever the file layout changes
const ArtifactVersion = 1

// Artifact is everything needed to reuse a trained classifier: the forest,
// the feature order it was fit on and the pipeline that produced them
type Artifact struct {
	Version      int                   `json:"version"`
	CreatedAt    time.Time             `json:"created_at"`
	FeatureNames []string              `json:"feature_names"`
	Pipeline     config.PipelineConfig `json:"pipeline"`
	Report       models.Report         `json:"report"`
	Forest       *forest.Forest        `json:"forest"`
}

// Predict classifies one feature vector
func (a *Artifact) Predict(v features.Vector) (int, error) {
	if len(v) != len(a.FeatureNames) {
		return 0, fmt.Errorf("vector has %d features, model expects %d", len(v), len(a.FeatureNames))
	}
	return a.Forest.Predict(v), nil
}

// Save writes the artifact next to path and renames it into place, so a
// reader never sees a partial file and a failed write keeps the old one
func (a *Artifact) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(a); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync model file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close model file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move model into place: %w", err)
	}
	return nil
}

// Load reads an artifact written by Save
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("unsupported model version %d", a.Version)
	}
	if a.Forest == nil || len(a.Forest.Trees) == 0 {
		return nil, fmt.Errorf("model file has no trees")
	}
	return &a, nil
}
