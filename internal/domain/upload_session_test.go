package domain

import "testing"

func TestUploadSession_Transition(t *testing.T) {
	s := NewUploadSession(&FileInfo{URI: "/a.bin", Exists: true, Size: 1}, "E", nil, nil)
	if s.State != UploadStateCreated || s.ChunkSize != UploadChunkSize {
		t.Fatalf("new session = %s/%d", s.State, s.ChunkSize)
	}

	for _, next := range []UploadState{UploadStatePreviousUploadsChecked, UploadStateUploading} {
		s.Transition(next)
		if s.State != next {
			t.Errorf("State = %s, want %s", s.State, next)
		}
		if s.Terminal() {
			t.Errorf("%s reported terminal", next)
		}
	}
}

func TestUploadSession_TerminalStateIsFinal(t *testing.T) {
	for _, final := range []UploadState{UploadStateSucceeded, UploadStateFailed} {
		s := NewUploadSession(&FileInfo{URI: "/a.bin"}, "E", nil, nil)
		s.Transition(UploadStateUploading)
		s.Transition(final)
		if !s.Terminal() {
			t.Fatalf("%s not terminal", final)
		}

		s.Transition(UploadStateUploading)
		s.Transition(UploadStateFailed)
		if s.State != final {
			t.Errorf("State = %s after leaving %s, want it kept", s.State, final)
		}
	}
}
