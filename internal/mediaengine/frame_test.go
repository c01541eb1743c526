package mediaengine

import "testing"

func TestBufferScale(t *testing.T) {
	b := NewBuffer(4, 2)
	for i := range b.Samples {
		b.Samples[i] = 1
	}
	b.Scale(0.5)
	for i, s := range b.Samples {
		if s != 0.5 {
			t.Fatalf("sample %d = %v, want 0.5", i, s)
		}
	}
}

func TestBufferScaleNoopAtUnity(t *testing.T) {
	b := NewBuffer(2, 1)
	b.Samples[0] = 0.3
	b.Samples[1] = -0.7
	b.Scale(1)
	if b.Samples[0] != 0.3 || b.Samples[1] != -0.7 {
		t.Fatalf("Scale(1) mutated samples: %v", b.Samples)
	}
}

func TestBufferAddScaled(t *testing.T) {
	dst := NewBuffer(2, 1)
	src := NewBuffer(2, 1)
	dst.Samples[0], dst.Samples[1] = 1, 1
	src.Samples[0], src.Samples[1] = 2, 2

	dst.AddScaled(src, 0.5)

	if dst.Samples[0] != 2 || dst.Samples[1] != 2 {
		t.Fatalf("AddScaled result = %v, want [2 2]", dst.Samples)
	}
}

func TestBufferAddScaledZeroGainIsNoop(t *testing.T) {
	dst := NewBuffer(2, 1)
	src := NewBuffer(2, 1)
	dst.Samples[0] = 1
	src.Samples[0] = 99

	dst.AddScaled(src, 0)

	if dst.Samples[0] != 1 {
		t.Fatalf("AddScaled with gain 0 changed dst: %v", dst.Samples)
	}
}

func TestBufferPeak(t *testing.T) {
	b := NewBuffer(3, 1)
	b.Samples[0] = -0.2
	b.Samples[1] = 0.9
	b.Samples[2] = 0.1
	if got := b.Peak(); got != 0.9 {
		t.Fatalf("Peak() = %v, want 0.9", got)
	}
}

func TestBufferFrameGain(t *testing.T) {
	b := NewBuffer(2, 2)
	b.Samples[0], b.Samples[1] = 0.1, -0.4
	b.Samples[2], b.Samples[3] = 0.2, 0.2

	if got := b.FrameGain(0); got != 0.4 {
		t.Fatalf("FrameGain(0) = %v, want 0.4", got)
	}
	if got := b.FrameGain(1); got != 0.2 {
		t.Fatalf("FrameGain(1) = %v, want 0.2", got)
	}
	if got := b.FrameGain(-1); got != 0 {
		t.Fatalf("FrameGain(-1) = %v, want 0", got)
	}
	if got := b.FrameGain(5); got != 0 {
		t.Fatalf("FrameGain(out of range) = %v, want 0", got)
	}
}

func TestBufferClear(t *testing.T) {
	b := NewBuffer(2, 2)
	for i := range b.Samples {
		b.Samples[i] = 1
	}
	b.Clear()
	for i, s := range b.Samples {
		if s != 0 {
			t.Fatalf("sample %d = %v after Clear, want 0", i, s)
		}
	}
}
