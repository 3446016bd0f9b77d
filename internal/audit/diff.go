package audit

import "reflect"

// Diff computes the attribute-level delta between two snapshots. A key is
// included when it is absent from before, or when its value differs from the
// before value. Comparison is reflect.DeepEqual, so values of different
// dynamic types never compare equal (no loosely-typed coercion).
//
// Keys present in before but absent from after are not represented in the
// result: the delta is built by walking after's keys only. An attribute that
// disappears between snapshots therefore leaves no trace in the change map,
// though it remains visible in the stored old/new snapshots.
func Diff(before, after Snapshot) map[string]Change {
	changes := make(map[string]Change)
	for key, newVal := range after {
		oldVal, ok := before[key]
		if !ok || !reflect.DeepEqual(oldVal, newVal) {
			changes[key] = Change{Old: oldVal, New: newVal}
		}
	}
	return changes
}
