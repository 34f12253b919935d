package triage

import (
	"encoding/json"
	"regexp"
	"strings"
)

// RepairStage names the parse strategy that produced a model reply.
type RepairStage string

const (
	StageDirect    RepairStage = "direct"
	StageFenced    RepairStage = "fenced_block"
	StageBraceSpan RepairStage = "brace_span"
	StageFallback  RepairStage = "fallback"
)

type repairStrategy struct {
	stage   RepairStage
	attempt func(raw string) (*ModelReply, bool)
}

// repairChain is tried in order; the first success wins.
var repairChain = []repairStrategy{
	{stage: StageDirect, attempt: parseDirect},
	{stage: StageFenced, attempt: parseFenced},
	{stage: StageBraceSpan, attempt: parseBraceSpan},
}

var fencedBlock = regexp.MustCompile("(?is)```[ \\t]*(json)?[ \\t]*\\r?\\n?(.*?)```")

// ParseModelReply runs the repair chain over raw model output. When every
// strategy fails the fallback reply is returned with StageFallback.
func ParseModelReply(raw string, fallback func() ModelReply) (ModelReply, RepairStage) {
	for _, strategy := range repairChain {
		if reply, ok := strategy.attempt(raw); ok {
			return *reply, strategy.stage
		}
	}
	return fallback(), StageFallback
}

func decodeReply(text string) (*ModelReply, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	var reply *ModelReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil || reply == nil {
		return nil, false
	}
	return reply, true
}

func parseDirect(raw string) (*ModelReply, bool) {
	return decodeReply(raw)
}

// parseFenced prefers blocks tagged json, then any fenced block.
func parseFenced(raw string) (*ModelReply, bool) {
	matches := fencedBlock.FindAllStringSubmatch(raw, -1)
	for _, tagged := range []bool{true, false} {
		for _, m := range matches {
			if (m[1] != "") != tagged {
				continue
			}
			if reply, ok := decodeReply(m[2]); ok {
				return reply, true
			}
		}
	}
	return nil, false
}

func parseBraceSpan(raw string) (*ModelReply, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return decodeReply(raw[start : end+1])
}
