package models

// FrameMeta is the per-frame timing pulled from the container.
type FrameMeta struct {
	DelayMs int `json:"delay_ms"`
}

// AnimationMetadata describes one animated input. It is read once per job and
// treated as read-only afterwards.
type AnimationMetadata struct {
	FrameCount   int         `json:"frame_count"`
	LoopCount    int         `json:"loop_count"` // 0 = infinite
	CanvasWidth  int         `json:"canvas_width"`
	CanvasHeight int         `json:"canvas_height"`
	Frames       []FrameMeta `json:"frames"`
}

// Delay returns the delay of frame i, or 0 when the container did not carry it.
func (m AnimationMetadata) Delay(i int) int {
	if i < 0 || i >= len(m.Frames) {
		return 0
	}
	return m.Frames[i].DelayMs
}

// Delays returns the ordered delay sequence.
func (m AnimationMetadata) Delays() []int {
	out := make([]int, len(m.Frames))
	for i, f := range m.Frames {
		out[i] = f.DelayMs
	}
	return out
}
