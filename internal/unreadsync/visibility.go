package unreadsync

type visibilityState int

const (
	visibilityIdle visibilityState = iota
	visibilityPendingRefresh
)

func (v visibilityState) String() string {
	if v == visibilityPendingRefresh {
		return "PENDING_REFRESH"
	}
	return "IDLE"
}

// SetVisible reports whether the UI is in the foreground. Coming back into
// view with an empty badge triggers a single refresh.
func (s *Synchronizer) SetVisible(visible bool) {
	s.post(func() { s.setVisible(visible) })
}

func (s *Synchronizer) setVisible(visible bool) {
	wasVisible := s.visible
	s.visible = visible
	if !visible || wasVisible {
		return
	}
	if s.visibility == visibilityPendingRefresh || s.counter.Total() != 0 {
		return
	}

	s.visibility = visibilityPendingRefresh
	f := s.requestPull("visibility")
	f.onDone = append(f.onDone, func(bool) {
		s.visibility = visibilityIdle
	})
}
