package keywatcher

import "testing"

func TestNotifyWakesRegisteredHandle(t *testing.T) {
	w := New()
	h := w.RegisterMany([]string{"a", "b"})
	w.Notify("a")
	select {
	case <-h.Ch:
	default:
		t.Fatalf("handle should have fired")
	}
}

func TestNotifyOnSecondKeyDoesNotPanicAfterFirstFire(t *testing.T) {
	w := New()
	h := w.RegisterMany([]string{"a", "b"})
	w.Notify("a")
	w.Notify("b") // must not double-close
	<-h.Ch
}

func TestUnregisterRemovesFromAllKeys(t *testing.T) {
	w := New()
	h := w.RegisterMany([]string{"a", "b"})
	w.UnregisterMany([]string{"a", "b"}, h)
	w.Notify("a")
	select {
	case <-h.Ch:
		t.Fatalf("unregistered handle should not fire")
	default:
	}
}
