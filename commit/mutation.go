package commit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/jrsteele09/amq-songs-gateway/dataset"
	apperrors "github.com/jrsteele09/amq-songs-gateway/internal/errors"
)

// Kind is the mutation a request asks for.
type Kind string

const (
	KindAdd    Kind = "add"
	KindEdit   Kind = "edit"
	KindDelete Kind = "delete"
	KindBulk   Kind = "bulk"
)

const availableIDSample = 10

// NotFoundError reports an edit or delete target absent from the base
// revision, with a sample of the ids that do exist.
type NotFoundError struct {
	TargetID     string
	AvailableIDs []string
}

func (e *NotFoundError) Error() string {
	if e.TargetID == "" {
		return "Target not found"
	}
	return fmt.Sprintf("Target not found: %s", e.TargetID)
}

func (e *NotFoundError) Unwrap() error { return apperrors.ErrNotFound }

// mutation is a parsed request, applied to each base revision it is tried
// against.
type mutation struct {
	kind   Kind
	target dataset.Item
	change dataset.Item
	bulk   []dataset.Item
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func parseMutation(req Request) (*mutation, error) {
	if !isNull(req.BulkUpdate) {
		items, err := dataset.DecodeItems(req.BulkUpdate)
		if err != nil {
			return nil, err
		}
		if err := checkUniqueIDs(items); err != nil {
			return nil, err
		}
		return &mutation{kind: KindBulk, bulk: items}, nil
	}

	var change dataset.Item
	if !isNull(req.Change) {
		dec := json.NewDecoder(bytes.NewReader(req.Change))
		dec.UseNumber()
		if err := dec.Decode(&change); err != nil || change == nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "Invalid change (expected object)")
		}
	}

	if req.Target == nil {
		if change == nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "Nothing to delete: entry was never saved")
		}
		return &mutation{kind: KindAdd, change: change}, nil
	}

	if req.Target.ID() == "" && req.Target.FallbackKey() == emptyFallbackKey {
		return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "Target has no id or identifying fields")
	}
	if change == nil {
		return &mutation{kind: KindDelete, target: req.Target}, nil
	}
	return &mutation{kind: KindEdit, target: req.Target, change: change}, nil
}

var emptyFallbackKey = dataset.Item{}.FallbackKey()

func (m *mutation) apply(base []dataset.Item, newID func() string) ([]dataset.Item, error) {
	switch m.kind {
	case KindBulk:
		return m.bulk, nil

	case KindAdd:
		item := maps.Clone(m.change)
		if item.ID() == "" {
			item["id"] = newID()
		} else if indexByID(base, item.ID()) >= 0 {
			return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "Duplicate id: %s", item.ID())
		}
		next := make([]dataset.Item, 0, len(base)+1)
		next = append(next, base...)
		return append(next, item), nil

	case KindDelete, KindEdit:
		idx := locate(base, m.target)
		if idx < 0 {
			return nil, &NotFoundError{TargetID: m.target.ID(), AvailableIDs: sampleIDs(base)}
		}
		next := make([]dataset.Item, 0, len(base))
		next = append(next, base[:idx]...)
		if m.kind == KindEdit {
			next = append(next, merge(base[idx], m.change, newID))
		}
		return append(next, base[idx+1:]...), nil
	}
	return nil, fmt.Errorf("[commit apply] unknown mutation %q", m.kind)
}

// merge overlays change on existing. The stored id always wins; a record
// that never had one is given one.
func merge(existing, change dataset.Item, newID func() string) dataset.Item {
	merged := maps.Clone(existing)
	for k, v := range change {
		if k == "id" {
			continue
		}
		merged[k] = v
	}
	if merged.ID() == "" {
		merged["id"] = newID()
	}
	return merged
}

// locate finds target by id, then by a fallback key that must match exactly
// one record.
// locate finds target by id, then by fallback key. An ambiguous fallback
// match is reported as not found.
func locate(items []dataset.Item, target dataset.Item) int {
	if id := target.ID(); id != "" {
		if idx := indexByID(items, id); idx >= 0 {
			return idx
		}
	}
	key := target.FallbackKey()
	if key == emptyFallbackKey {
		return -1
	}
	found := -1
	for i, it := range items {
		if it.FallbackKey() != key {
			continue
		}
		if found >= 0 {
			return -1
		}
		found = i
	}
	return found
}

func indexByID(items []dataset.Item, id string) int {
	for i, it := range items {
		if it.ID() == id {
			return i
		}
	}
	return -1
}

func sampleIDs(items []dataset.Item) []string {
	ids := make([]string, 0, availableIDSample)
	for _, it := range items {
		if id := it.ID(); id != "" {
			ids = append(ids, id)
			if len(ids) == availableIDSample {
				break
			}
		}
	}
	return ids
}

func checkUniqueIDs(items []dataset.Item) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		id := it.ID()
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			return apperrors.Newf(apperrors.ErrInvalidRequest, "Duplicate id: %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
