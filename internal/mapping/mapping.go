// Package mapping translates human-facing string tags to the numeric labels
// stored in an engine.
//
// A Mapping owns label allocation: labels come from a counter starting at
// zero and are never reused, so a stale external reference to a removed tag
// can never resolve to a different vector.
//
// Mapping is not safe for concurrent use. The owning store holds its mapping
// lock across every call so that allocation and both map insertions form a
// single critical section.
package mapping

import (
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// Mapping is a bidirectional tag <-> label table.
type Mapping struct {
	tagToLabel map[string]uint64
	labelToTag map[uint64]string
	next       uint64
}

// New returns an empty mapping whose first allocated label is 0.
func New() *Mapping {
	return &Mapping{
		tagToLabel: make(map[string]uint64),
		labelToTag: make(map[uint64]string),
	}
}

// GetOrCreate returns the label for tag, allocating the next label if the
// tag is unknown. Repeated calls with the same tag return the same label.
func (m *Mapping) GetOrCreate(tag string) uint64 {
	if label, ok := m.tagToLabel[tag]; ok {
		return label
	}

	label := m.next
	m.next++
	m.tagToLabel[tag] = label
	m.labelToTag[label] = tag
	return label
}

// Lookup returns the label for tag without allocating.
func (m *Mapping) Lookup(tag string) (uint64, bool) {
	label, ok := m.tagToLabel[tag]
	return label, ok
}

// Tag returns the tag stored under label.
func (m *Mapping) Tag(label uint64) (string, bool) {
	tag, ok := m.labelToTag[label]
	return tag, ok
}

// Remove deletes tag and its label as a pair and returns the retired label.
// It reports false if the tag was unknown.
func (m *Mapping) Remove(tag string) (uint64, bool) {
	label, ok := m.tagToLabel[tag]
	if !ok {
		return 0, false
	}
	delete(m.tagToLabel, tag)
	delete(m.labelToTag, label)
	return label, true
}

// Len returns the number of live tags.
func (m *Mapping) Len() int {
	return len(m.tagToLabel)
}

// Next returns the label the next allocation will use.
func (m *Mapping) Next() uint64 {
	return m.next
}

// Tags returns all live tags in sorted order.
func (m *Mapping) Tags() []string {
	tags := make([]string, 0, len(m.tagToLabel))
	for tag := range m.tagToLabel {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// wireMapping is the persisted form. The allocation counter is derived on
// load and deliberately not stored.
type wireMapping struct {
	LabelToTag map[uint64]string `msgpack:"label_to_tag"`
	TagToLabel map[string]uint64 `msgpack:"tag_to_label"`
}

// MarshalBinary encodes the mapping with msgpack.
func (m *Mapping) MarshalBinary() ([]byte, error) {
	data, err := msgpack.Marshal(&wireMapping{
		LabelToTag: m.labelToTag,
		TagToLabel: m.tagToLabel,
	})
	if err != nil {
		return nil, fmt.Errorf("mapping: marshal: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a mapping produced by MarshalBinary and restores the
// allocation counter as max(label)+1, or 0 when empty. It rejects data whose
// two directions disagree.
func Unmarshal(data []byte) (*Mapping, error) {
	var w wireMapping
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("mapping: unmarshal: %w", err)
	}

	m := New()
	if len(w.TagToLabel) != len(w.LabelToTag) {
		return nil, fmt.Errorf("mapping: inconsistent sizes: %d tags, %d labels",
			len(w.TagToLabel), len(w.LabelToTag))
	}

	var maxLabel uint64
	for tag, label := range w.TagToLabel {
		if back, ok := w.LabelToTag[label]; !ok || back != tag {
			return nil, fmt.Errorf("mapping: tag %q -> label %d is not mirrored", tag, label)
		}
		m.tagToLabel[tag] = label
		m.labelToTag[label] = tag
		if label > maxLabel {
			maxLabel = label
		}
	}
	if len(m.tagToLabel) > 0 {
		m.next = maxLabel + 1
	}
	return m, nil
}
