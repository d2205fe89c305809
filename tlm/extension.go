package tlm

import "reflect"

// Extension is auxiliary data attached to a transaction, keyed by its concrete type.
//
// Clone must return an independent copy; CopyFrom copies the state of another extension of the
// same concrete type into the receiver.
type Extension interface {
	Clone() Extension
	CopyFrom(other Extension)
}

type extensionKey = reflect.Type

type extensionSlot struct {
	ext  Extension
	auto bool
}

func keyOf[T Extension]() extensionKey {
	return reflect.TypeFor[T]()
}

// SetExtension attaches ext to t, replacing any extension of the same type.
// It returns the previously attached extension and whether one existed.
func SetExtension[T Extension](t *Transaction, ext T) (T, bool) {
	prev, ok := GetExtension[T](t)
	t.setSlot(keyOf[T](), ext, false)

	return prev, ok
}

// SetAutoExtension attaches ext to t like SetExtension, and marks it for automatic removal
// when the transaction returns to its pool.
func SetAutoExtension[T Extension](t *Transaction, ext T) {
	t.setSlot(keyOf[T](), ext, true)
}

// GetExtension returns the extension of type T attached to t.
func GetExtension[T Extension](t *Transaction) (T, bool) {
	var zero T
	slot, ok := t.extensions[keyOf[T]()]
	if !ok {
		return zero, false
	}
	ext, ok := slot.ext.(T)

	return ext, ok
}

// ClearExtension removes the extension of type T from t.
func ClearExtension[T Extension](t *Transaction) {
	delete(t.extensions, keyOf[T]())
}

// ExtensionCount returns the number of extensions attached to t.
func (t *Transaction) ExtensionCount() int {
	return len(t.extensions)
}

func (t *Transaction) setSlot(key extensionKey, ext Extension, auto bool) {
	if t.extensions == nil {
		t.extensions = make(map[extensionKey]*extensionSlot, 2)
	}
	t.extensions[key] = &extensionSlot{ext: ext, auto: auto}
}

// clearAutoExtensions removes every extension set with SetAutoExtension.
func (t *Transaction) clearAutoExtensions() {
	for key, slot := range t.extensions {
		if slot.auto {
			delete(t.extensions, key)
		}
	}
}
