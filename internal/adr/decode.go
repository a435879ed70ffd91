package adr

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// recordLists are the list attributes of a Record. Files written by hand or
// by older tools sometimes hold a string or an object there; such values are
// dropped and come back as empty lists.
var recordLists = map[string]func(json.RawMessage) bool{
	"authors":      fits[[]Author],
	"reviewers":    fits[[]Reviewer],
	"tags":         fits[[]string],
	"supersedes":   fits[[]string],
	"related":      fits[[]string],
	"alternatives": fits[[]Alternative],
	"conformity":   fits[[]ConformityItem],
}

var recordText = []string{
	"id", "title", "slug", "status", "date", "version",
	"context", "problem", "decision", "justification",
	"positiveConsequences", "negativeConsequences", "security", "operability",
	"implementationPlan", "impact", "monitoring", "appendices",
	"createdAt", "updatedAt",
}

var versionText = []string{"version", "date", "author", "changes"}

func fits[T any](raw json.RawMessage) bool {
	var v T
	return json.Unmarshal(raw, &v) == nil
}

// Decode parses a stored ADR. Only content that is not a JSON object is an
// error; attributes of the wrong shape are repaired or dropped.
func Decode(data []byte) (ADR, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return ADR{}, fmt.Errorf("decode adr: %w", err)
	}
	cleanRecord(fields)
	cleanHistory(fields)

	cleaned, err := json.Marshal(fields)
	if err != nil {
		return ADR{}, fmt.Errorf("decode adr: %w", err)
	}
	var a ADR
	if err := json.Unmarshal(cleaned, &a); err != nil {
		return ADR{}, fmt.Errorf("decode adr: %w", err)
	}
	a.Normalize()
	return a, nil
}

func cleanRecord(fields map[string]json.RawMessage) {
	for key, ok := range recordLists {
		if raw, present := fields[key]; present && !ok(raw) {
			delete(fields, key)
		}
	}
	cleanText(fields, recordText)
}

func cleanHistory(fields map[string]json.RawMessage) {
	raw, present := fields["history"]
	if !present {
		return
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		delete(fields, "history")
		return
	}
	kept := make([]map[string]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		var version map[string]json.RawMessage
		if err := json.Unmarshal(entry, &version); err != nil || version == nil {
			continue
		}
		cleanText(version, versionText)
		if snap, ok := version["snapshot"]; ok {
			var record map[string]json.RawMessage
			if err := json.Unmarshal(snap, &record); err != nil || record == nil {
				delete(version, "snapshot")
			} else {
				cleanRecord(record)
				delete(record, "history")
				version["snapshot"], _ = json.Marshal(record)
			}
		}
		kept = append(kept, version)
	}
	fields["history"], _ = json.Marshal(kept)
}

// cleanText turns numbers and booleans into their literal text and drops
// objects and arrays found where a string belongs.
func cleanText(fields map[string]json.RawMessage, keys []string) {
	for _, key := range keys {
		raw, present := fields[key]
		if !present {
			continue
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 {
			delete(fields, key)
			continue
		}
		switch trimmed[0] {
		case '"':
		case '{', '[':
			delete(fields, key)
		case 'n':
			delete(fields, key)
		default:
			fields[key], _ = json.Marshal(string(trimmed))
		}
	}
}
