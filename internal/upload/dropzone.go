package upload

import "sync"

// DropZone tracks the "is-dragging" indicator of a drag-and-drop target.
// Drag events never validate anything; only Drop hands a file on.
type DropZone struct {
	mu       sync.Mutex
	dragging bool
}

func (z *DropZone) DragEnter() bool { return z.set(true) }
func (z *DropZone) DragOver() bool  { return z.set(true) }
func (z *DropZone) DragLeave() bool { return z.set(false) }

// Drop clears the indicator; the dropped file is submitted by the caller.
func (z *DropZone) Drop() bool { return z.set(false) }

// Dragging reports the current indicator value.
func (z *DropZone) Dragging() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.dragging
}

// set updates the flag and reports whether it changed.
func (z *DropZone) set(v bool) bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	changed := z.dragging != v
	z.dragging = v
	return changed
}
