package domainfn

import (
	"slices"
	"testing"

	"pgregory.net/rapid"

	"github.com/pithecene-io/specbridge/engine"
	"github.com/pithecene-io/specbridge/types"
)

func TestRehydrate_Nil(t *testing.T) {
	if Rehydrate(nil) != nil {
		t.Error("nil input should rehydrate to nil")
	}
}

func TestRehydrate_Test(t *testing.T) {
	ctx := map[string]any{"alias": "x"}
	s := &types.SerializedRunnable{
		ID:        "r2",
		Type:      types.RunnableTypeTest,
		Title:     "works",
		Ctx:       ctx,
		Timeout:   2500,
		TitlePath: []string{"suite", "works"},
	}

	r := Rehydrate(s)

	if r.Type != types.RunnableTypeTest || r.ID != "r2" || r.Title != "works" || r.Timeout != 2500 {
		t.Errorf("identity not copied: %+v", r)
	}
	if r.State() != engine.RunnablePending {
		t.Errorf("state = %q, want pending", r.State())
	}
	if r.Parent != nil {
		t.Error("root runnable should have no parent")
	}
	if r.Callback == nil {
		t.Fatal("callback must be set")
	}
	r.Callback()

	r.Ctx["added"] = true
	if ctx["added"] != true {
		t.Error("ctx must be shared by reference")
	}
}

func TestRehydrate_GenericKindKept(t *testing.T) {
	r := Rehydrate(&types.SerializedRunnable{ID: "h1", Type: types.RunnableTypeHook, Title: "before each"})
	if r.Type != types.RunnableTypeHook {
		t.Errorf("type = %q, want hook", r.Type)
	}

	custom := Rehydrate(&types.SerializedRunnable{ID: "x", Type: "benchmark"})
	if custom.Type != "benchmark" {
		t.Errorf("type = %q, want benchmark", custom.Type)
	}
}

func TestRehydrate_NilCtxShared(t *testing.T) {
	s := &types.SerializedRunnable{ID: "r", Type: types.RunnableTypeTest}
	r := Rehydrate(s)

	r.Ctx["k"] = 1
	if s.Ctx["k"] != 1 {
		t.Error("nil ctx should be replaced by a map shared with the serialized runnable")
	}
}

func TestRehydrate_PathSurvivesMutation(t *testing.T) {
	s := &types.SerializedRunnable{
		ID:        "r3",
		Type:      types.RunnableTypeTest,
		Title:     "t",
		TitlePath: []string{"outer", "inner", "t"},
		Parent: &types.SerializedRunnable{
			ID:        "r2",
			Type:      types.RunnableTypeSuite,
			Title:     "inner",
			TitlePath: []string{"outer", "inner"},
		},
	}

	r := Rehydrate(s)
	r.Title = "renamed"
	r.Parent.Title = "renamed parent"
	r.Parent = engine.NewRunnable("replacement")
	s.TitlePath[0] = "mutated"

	if got := r.TitlePath(); !slices.Equal(got, []string{"outer", "inner", "t"}) {
		t.Errorf("title path = %v", got)
	}
}

// genSerialized draws a parent chain of the given depth.
func genSerialized(t *rapid.T, depth int) *types.SerializedRunnable {
	var parent *types.SerializedRunnable
	var path []string
	for i := 0; i <= depth; i++ {
		title := rapid.StringMatching(`[a-z][a-z ]{0,10}`).Draw(t, "title")
		path = append(slices.Clone(path), title)
		kind := types.RunnableTypeSuite
		if i == depth {
			kind = rapid.SampledFrom([]types.RunnableType{
				types.RunnableTypeTest, types.RunnableTypeHook, types.RunnableTypeSuite,
			}).Draw(t, "type")
		}
		parent = &types.SerializedRunnable{
			ID:        rapid.StringMatching(`r[0-9]{1,4}`).Draw(t, "id"),
			Type:      kind,
			Title:     title,
			Ctx:       map[string]any{},
			Timeout:   rapid.Int64Range(0, 60000).Draw(t, "timeout"),
			TitlePath: slices.Clone(path),
			Parent:    parent,
		}
	}
	return parent
}

func TestRehydrate_ChainProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		depth := rapid.IntRange(0, 8).Draw(t, "depth")
		s := genSerialized(t, depth)

		wantPaths := make([][]string, 0, depth+1)
		for p := s; p != nil; p = p.Parent {
			wantPaths = append(wantPaths, slices.Clone(p.TitlePath))
		}

		r := Rehydrate(s)

		// Titles mutated after rehydration must not leak into paths.
		for l := r; l != nil; l = l.Parent {
			l.Title += " (mutated)"
		}

		n := 0
		sp := s
		for l := r; l != nil; l = l.Parent {
			if !slices.Equal(l.TitlePath(), wantPaths[n]) {
				t.Fatalf("node %d path = %v, want %v", n, l.TitlePath(), wantPaths[n])
			}
			if l.ID != sp.ID || l.Type != sp.Type || l.Timeout != sp.Timeout {
				t.Fatalf("node %d identity mismatch", n)
			}
			n++
			sp = sp.Parent
		}
		if n != depth+1 {
			t.Fatalf("live chain length = %d, want %d", n, depth+1)
		}
	})
}
