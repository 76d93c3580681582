package prompts

import (
	"encoding/json"
	"slices"
)

// Stage identifies the reasoning call a prompt override targets.
type Stage string

const (
	StageMapping Stage = "mapping"
	StageAnomaly Stage = "anomaly"
	StageAudit   Stage = "audit"
)

// Stages lists every stage in the order the pipeline reaches them.
func Stages() []Stage {
	return []Stage{StageMapping, StageAnomaly, StageAudit}
}

// ParseStage validates s as a known stage.
func ParseStage(s string) (Stage, error) {
	if v := Stage(s); slices.Contains(Stages(), v) {
		return v, nil
	}
	return "", ErrInvalidStage
}

func (s *Stage) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := ParseStage(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
