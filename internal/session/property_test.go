package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// Any interleaving of select, clear, prompt edits and failing requests keeps
// at most one image selected and clears the error on every selection.
func TestSession_SelectionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fail := rapid.Bool().Draw(t, "fail")
		client := &fakeClient{
			transformFunc: func(ctx context.Context, imageBase64, p string) (string, error) {
				if fail {
					return "", fmt.Errorf("offline")
				}
				return "data:image/png;base64,b2s=", nil
			},
		}
		sess := New("prop", Options{Client: client})

		var selected string
		resultsBefore := 0
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				id := fmt.Sprintf("img-%d", rapid.IntRange(0, 5).Draw(t, "img"))
				sess.SelectImage(testImage(id))
				selected = id
				st := sess.Snapshot()
				if st.Error != "" {
					t.Fatalf("error not cleared on select: %q", st.Error)
				}
				if len(st.Results) != resultsBefore {
					t.Fatalf("select changed results")
				}
			case 1:
				sess.ClearImage()
				selected = ""
			case 2:
				sess.SetPrompt(rapid.String().Draw(t, "prompt"))
			case 3:
				err := sess.RequestGenerate(context.Background())
				if selected == "" && !errors.Is(err, ErrNoImage) {
					t.Fatalf("expected ErrNoImage, got %v", err)
				}
			}

			st := sess.Snapshot()
			resultsBefore = len(st.Results)
			if selected == "" && st.SelectedImage != nil {
				t.Fatalf("image selected after clear")
			}
			if selected != "" && (st.SelectedImage == nil || st.SelectedImage.ID != selected) {
				t.Fatalf("expected %q selected", selected)
			}
			if st.Busy() {
				t.Fatalf("flags left set after step")
			}
		}
	})
}
