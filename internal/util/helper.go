package util

// CloneSlice returns a copy of src of cloneSize elements, or of len(src) elements when
// cloneSize is 0. A nil src stays nil, so optional payloads such as byte enables keep their
// "not set" meaning.
func CloneSlice[T any](src []T, cloneSize int) []T {
	if src == nil {
		return nil
	}
	if cloneSize == 0 {
		cloneSize = len(src)
	}
	clone := make([]T, cloneSize)
	copy(clone, src)

	return clone
}
