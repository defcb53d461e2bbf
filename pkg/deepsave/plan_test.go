package deepsave

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/deepsave/pkg/entity"
)

func TestPlan(t *testing.T) {
	avatar := entity.New("Image")
	author := entity.New("User").Set("avatar", avatar)
	t1, t2 := entity.New("Tag"), entity.New("Tag")
	post := entity.New("Post").
		Set("author", author).
		Set("tags", []*entity.Entity{t1, entity.Existing("Tag", "x"), t2})

	p, err := Plan(post, nil)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	want := []PlanRound{
		{Round: 1, Batches: []PlanBatch{
			{Class: "Image", Nodes: []entity.LocalID{avatar.LocalID()}},
			{Class: "Tag", Nodes: []entity.LocalID{t1.LocalID(), t2.LocalID()}},
		}},
		{Round: 2, Batches: []PlanBatch{
			{Class: "User", Nodes: []entity.LocalID{author.LocalID()}},
		}},
	}
	if diff := cmp.Diff(want, p.Rounds); diff != "" {
		t.Errorf("Rounds mismatch (-want +got):\n%s", diff)
	}
	if p.Root != post.LocalID() || p.RootClass != "Post" {
		t.Errorf("Root = %s %s", p.RootClass, p.Root)
	}
	if p.Requests() != 4 {
		t.Errorf("Requests() = %d, want 4", p.Requests())
	}
	if p.Objects() != 5 {
		t.Errorf("Objects() = %d, want 5", p.Objects())
	}
	if n, _ := p.Graph.Node(string(post.LocalID())); n.Level != 2 {
		t.Errorf("root level = %d, want 2", n.Level)
	}
}

func TestPlan_MatchesSave(t *testing.T) {
	s, _, _ := newSaver(t)
	grand := entity.New("Image")
	root := entity.New("Post").Set("author", entity.New("User").Set("avatar", grand))

	p, err := s.Plan(root)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	res, err := s.Save(t.Context(), root)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if len(p.Rounds) != res.Rounds || p.Requests() != res.Requests {
		t.Errorf("plan %d rounds/%d requests, save %d/%d",
			len(p.Rounds), p.Requests(), res.Rounds, res.Requests)
	}
}

func TestPlan_Errors(t *testing.T) {
	e := entity.New("Node")
	e.Set("self", e)
	if _, err := Plan(e, nil); !errors.Is(err, ErrCircularDependency) {
		t.Errorf("Plan(cycle) = %v", err)
	}

	bad := entity.New("Post").Set("ch", make(chan int))
	if _, err := Plan(bad, nil); !errors.Is(err, ErrEncoding) {
		t.Errorf("Plan(bad field) = %v", err)
	}
}
