package pet

import (
	"fmt"
	"strings"
)

// Stage is an ordered life stage. Later stages compare greater.
type Stage uint8

const (
	StageBaby Stage = iota
	StageChild
	StageTeen
	StageAdult
	StageElder
)

type stageInfo struct {
	name    string
	emoji   string
	minDays int
}

var stageTable = [...]stageInfo{
	StageBaby:  {name: "baby", emoji: "👶", minDays: 0},
	StageChild: {name: "child", emoji: "🧒", minDays: 3},
	StageTeen:  {name: "teen", emoji: "👦", minDays: 7},
	StageAdult: {name: "adult", emoji: "👨", minDays: 14},
	StageElder: {name: "elder", emoji: "👴", minDays: 30},
}

// StageForAge maps an age in whole days to its life stage.
func StageForAge(days int) Stage {
	for s := StageElder; s > StageBaby; s-- {
		if days >= stageTable[s].minDays {
			return s
		}
	}
	return StageBaby
}

func (s Stage) Valid() bool {
	return int(s) < len(stageTable)
}

func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
	return stageTable[s].name
}

// Title is the capitalised stage name used in rendered messages.
func (s Stage) Title() string {
	name := s.String()
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func (s Stage) Emoji() string {
	if !s.Valid() {
		return ""
	}
	return stageTable[s].emoji
}

// MinDays is the first age at which the stage applies.
func (s Stage) MinDays() int {
	if !s.Valid() {
		return 0
	}
	return stageTable[s].minDays
}

func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("pet: invalid stage %d", s)
	}
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	for i := range stageTable {
		if strings.EqualFold(stageTable[i].name, string(b)) {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("pet: unknown stage %q", string(b))
}
