package kms

// PropertyValue is one (object, property, value) triple of an atomic
// request.
type PropertyValue struct {
	ObjectID   uint32
	PropertyID uint32
	Value      uint64
}

// AtomicRequest accumulates property writes for one atomic commit.
// Writes are kept in insertion order; the whole set applies all-or-nothing
// when passed to Device.Commit. A request may be reused after Reset.
type AtomicRequest struct {
	props []PropertyValue
}

// NewAtomicRequest returns an empty request.
func NewAtomicRequest() *AtomicRequest {
	return &AtomicRequest{}
}

// Add appends one property write.
func (r *AtomicRequest) Add(objectID, propertyID uint32, value uint64) {
	r.props = append(r.props, PropertyValue{
		ObjectID:   objectID,
		PropertyID: propertyID,
		Value:      value,
	})
}

// Len returns the number of queued writes.
func (r *AtomicRequest) Len() int {
	return len(r.props)
}

// Props returns a copy of the queued writes in insertion order.
func (r *AtomicRequest) Props() []PropertyValue {
	out := make([]PropertyValue, len(r.props))
	copy(out, r.props)
	return out
}

// Reset empties the request for reuse.
func (r *AtomicRequest) Reset() {
	r.props = r.props[:0]
}

// encode flattens the request into the kernel's parallel-array layout:
// object ids, per-object property counts, property ids, values. Adjacent
// writes to the same object coalesce into one entry; insertion order is
// otherwise preserved.
func (r *AtomicRequest) encode() (objs []uint32, counts []uint32, props []uint32, values []uint64) {
	for _, p := range r.props {
		n := len(objs)
		if n == 0 || objs[n-1] != p.ObjectID {
			objs = append(objs, p.ObjectID)
			counts = append(counts, 0)
			n++
		}
		counts[n-1]++
		props = append(props, p.PropertyID)
		values = append(values, p.Value)
	}
	return objs, counts, props, values
}
