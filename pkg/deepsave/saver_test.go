package deepsave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/deepsave/pkg/codec"
	"github.com/matzehuels/deepsave/pkg/entity"
	deerrors "github.com/matzehuels/deepsave/pkg/errors"
	"github.com/matzehuels/deepsave/pkg/store"
	"github.com/matzehuels/deepsave/pkg/store/memory"
	"github.com/matzehuels/deepsave/pkg/transport"
)

func newSaver(t *testing.T, opts ...memory.Option) (*Saver, *transport.Recorder, *memory.Store) {
	t.Helper()
	mem := memory.New(opts...)
	t.Cleanup(func() { _ = mem.Close() })
	rec := transport.NewRecorder(transport.Direct(mem))
	return New(rec, Options{}), rec, mem
}

func rejectName(name string) memory.Option {
	return memory.WithReject(func(_ string, doc store.Document) error {
		if doc["name"] == name {
			return errors.New("rejected " + name)
		}
		return nil
	})
}

func TestSave_SingleEntity(t *testing.T) {
	s, rec, _ := newSaver(t)
	post := entity.New("Post").Set("title", "hello")

	res, err := s.Save(context.Background(), post)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if res.Rounds != 0 || res.Requests != 1 || rec.Count() != 1 {
		t.Errorf("Rounds=%d Requests=%d calls=%d, want 0/1/1", res.Rounds, res.Requests, rec.Count())
	}
	if rec.Calls()[0].Many {
		t.Error("root must be committed with SaveOne")
	}
	if ref := res.Refs[post.LocalID()]; ref.Class != "Post" || ref.ID == "" || ref != res.Root {
		t.Errorf("Refs[post] = %v, Root = %v", ref, res.Root)
	}
}

func TestSave_RefsCoverEveryUnsavedEntity(t *testing.T) {
	s, _, _ := newSaver(t)

	avatar := entity.New("Image").Set("url", "a.png")
	author := entity.New("User").Set("name", "alice").Set("avatar", avatar)
	t1 := entity.New("Tag").Set("name", "go")
	t2 := entity.New("Tag").Set("name", "graphs")
	existing := entity.Existing("Tag", "old")
	post := entity.New("Post").
		Set("author", author).
		Set("tags", []*entity.Entity{t1, existing, t2})

	res, err := s.Save(context.Background(), post)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	want := []*entity.Entity{post, author, avatar, t1, t2}
	if len(res.Refs) != len(want) {
		t.Fatalf("len(Refs) = %d, want %d", len(res.Refs), len(want))
	}
	for _, e := range want {
		ref, ok := res.Ref(e)
		if !ok {
			t.Errorf("no ref for %s", e)
			continue
		}
		if ref.Class != e.Class {
			t.Errorf("ref class = %q, want %q", ref.Class, e.Class)
		}
	}
	if _, ok := res.Ref(existing); ok {
		t.Error("identified entity must not be saved")
	}
}

func TestSave_CycleSendsNothing(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *entity.Entity
		pathLen int
	}{
		{
			name: "self",
			build: func() *entity.Entity {
				e := entity.New("Node")
				return e.Set("next", e)
			},
			pathLen: 2,
		},
		{
			name: "back reference",
			build: func() *entity.Entity {
				post := entity.New("Post")
				user := entity.New("User").Set("lastPost", post)
				return post.Set("author", user)
			},
			pathLen: 3,
		},
		{
			name: "through sequence",
			build: func() *entity.Entity {
				root := entity.New("Folder")
				child := entity.New("Folder")
				grand := entity.New("File").Set("parent", child)
				child.Set("files", []*entity.Entity{grand})
				return root.Set("children", []*entity.Entity{child})
			},
			pathLen: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, rec, _ := newSaver(t)

			_, err := s.Save(context.Background(), tt.build())
			if !errors.Is(err, ErrCircularDependency) {
				t.Fatalf("Save() = %v, want ErrCircularDependency", err)
			}
			var cerr *CircularDependencyError
			if !errors.As(err, &cerr) {
				t.Fatalf("error type = %T", err)
			}
			if len(cerr.Path) != tt.pathLen {
				t.Errorf("Path = %v, want %d hops", cerr.Path, tt.pathLen)
			}
			if cerr.Path[0] != cerr.Path[len(cerr.Path)-1] {
				t.Errorf("Path does not close: %v", cerr.Path)
			}
			if rec.Count() != 0 {
				t.Errorf("transport called %d times, want 0", rec.Count())
			}
			if got := deerrors.GetCode(err); got != deerrors.ErrCodeCircularDependency {
				t.Errorf("GetCode() = %q", got)
			}
		})
	}
}

func TestSave_SiblingsShareOneBatch(t *testing.T) {
	s, rec, _ := newSaver(t)
	a := entity.New("Tag").Set("name", "a")
	b := entity.New("Tag").Set("name", "b")
	post := entity.New("Post").Set("first", a).Set("second", b)

	res, err := s.Save(context.Background(), post)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	calls := rec.Calls()
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if !calls[0].Many || calls[0].Class != "Tag" || len(calls[0].Requests) != 2 {
		t.Errorf("calls[0] = %+v, want one Tag batch of 2", calls[0])
	}
	if calls[1].Many || calls[1].Class != "Post" {
		t.Errorf("calls[1] = %+v, want Post root commit", calls[1])
	}
	if res.Rounds != 1 {
		t.Errorf("Rounds = %d, want 1", res.Rounds)
	}
}

func TestSave_OneLevelChain(t *testing.T) {
	s, rec, _ := newSaver(t)
	user := entity.New("User").Set("name", "alice")
	post := entity.New("Post").Set("author", user).Set("title", "hi")

	res, err := s.Save(context.Background(), post)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	calls := rec.Calls()
	if len(calls) != 2 || calls[0].Class != "User" || calls[1].Class != "Post" {
		t.Fatalf("calls = %+v, want User then Post", calls)
	}

	want := map[string]any{
		"title":  "hi",
		"author": codec.Pointer(res.Refs[user.LocalID()]),
	}
	if diff := cmp.Diff(want, calls[1].Requests[0].Body); diff != "" {
		t.Errorf("root body mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_TwoLevelChain(t *testing.T) {
	s, rec, _ := newSaver(t)
	grand := entity.New("Image")
	child := entity.New("User").Set("avatar", grand)
	root := entity.New("Post").Set("author", child)

	res, err := s.Save(context.Background(), root)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if res.Rounds != 2 {
		t.Errorf("Rounds = %d, want 2", res.Rounds)
	}
	if len(res.Refs) != 3 {
		t.Errorf("len(Refs) = %d, want 3", len(res.Refs))
	}

	var classes []string
	for _, c := range rec.Calls() {
		classes = append(classes, c.Class)
	}
	if diff := cmp.Diff([]string{"Image", "User", "Post"}, classes); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}

	var rounds []int
	for _, o := range res.Outcomes {
		rounds = append(rounds, o.Round)
	}
	if diff := cmp.Diff([]int{1, 2, 0}, rounds); diff != "" {
		t.Errorf("outcome rounds mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_SequenceResolvedToReferences(t *testing.T) {
	s, rec, _ := newSaver(t)
	tags := []*entity.Entity{
		entity.New("Tag").Set("name", "a"),
		entity.Existing("Tag", "t0"),
		entity.New("Tag").Set("name", "c"),
	}
	post := entity.New("Post").Set("tags", tags)

	res, err := s.Save(context.Background(), post)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	calls := rec.Calls()
	body := calls[len(calls)-1].Requests[0].Body
	want := []any{
		codec.Pointer(res.Refs[tags[0].LocalID()]),
		codec.Pointer(entity.Reference{Class: "Tag", ID: "t0"}),
		codec.Pointer(res.Refs[tags[2].LocalID()]),
	}
	if diff := cmp.Diff(want, body["tags"]); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_SequencePartialFailure(t *testing.T) {
	s, rec, mem := newSaver(t, rejectName("bad"))
	good1 := entity.New("Tag").Set("name", "a")
	bad := entity.New("Tag").Set("name", "bad")
	good2 := entity.New("Tag").Set("name", "c")
	post := entity.New("Post").Set("tags", []*entity.Entity{good1, bad, good2})

	_, err := s.Save(context.Background(), post)
	if !errors.Is(err, ErrChildSave) {
		t.Fatalf("Save() = %v, want ErrChildSave", err)
	}
	var cerr *ChildSaveError
	if !errors.As(err, &cerr) {
		t.Fatalf("error type = %T", err)
	}

	if len(cerr.Failures) != 1 {
		t.Fatalf("Failures = %+v, want 1", cerr.Failures)
	}
	f := cerr.Failures[0]
	if f.LocalID != bad.LocalID() || f.Class != "Tag" {
		t.Errorf("failure = %+v, want the bad tag", f)
	}
	if diff := cmp.Diff([]entity.LocalID{post.LocalID()}, f.Parents); diff != "" {
		t.Errorf("blocked parents mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]entity.LocalID{good1.LocalID(), good2.LocalID()}, cerr.Persisted); diff != "" {
		t.Errorf("persisted mismatch (-want +got):\n%s", diff)
	}

	if mem.Count("Tag") != 2 {
		t.Errorf("Count(Tag) = %d, want 2", mem.Count("Tag"))
	}
	if mem.Count("Post") != 0 {
		t.Error("root must not be committed")
	}
	for _, c := range rec.Calls() {
		if !c.Many {
			t.Error("SaveOne issued despite a failed child")
		}
	}
	if deerrors.GetCode(err) != deerrors.ErrCodeChildSaveFailure {
		t.Errorf("GetCode() = %q", deerrors.GetCode(err))
	}
}

func TestSave_FailureStopsLaterRounds(t *testing.T) {
	s, rec, mem := newSaver(t, rejectName("bad"))
	// The failing tag sits in round 1; the user above the healthy image
	// would be ready in round 2 but must not be sent.
	image := entity.New("Image")
	user := entity.New("User").Set("avatar", image)
	post := entity.New("Post").
		Set("author", user).
		Set("tag", entity.New("Tag").Set("name", "bad"))

	_, err := s.Save(context.Background(), post)
	if !errors.Is(err, ErrChildSave) {
		t.Fatalf("Save() = %v, want ErrChildSave", err)
	}
	if mem.Count("User") != 0 {
		t.Error("round 2 ran after a failing round")
	}
	if mem.Count("Image") != 1 {
		t.Errorf("Count(Image) = %d, want 1", mem.Count("Image"))
	}
	if rec.Count() != 2 {
		t.Errorf("calls = %d, want 2 (Image and Tag batches)", rec.Count())
	}
}

func TestSave_TwiceCreatesTwoRecords(t *testing.T) {
	s, _, mem := newSaver(t)
	post := entity.New("Post").Set("title", "same")

	first, err := s.Save(context.Background(), post)
	if err != nil {
		t.Fatalf("first Save() error: %v", err)
	}
	second, err := s.Save(context.Background(), post)
	if err != nil {
		t.Fatalf("second Save() error: %v", err)
	}
	if first.Root.ID == second.Root.ID {
		t.Error("two calls produced the same record")
	}
	if mem.Count("Post") != 2 {
		t.Errorf("Count(Post) = %d, want 2", mem.Count("Post"))
	}
}

func TestSave_EqualInstancesAreNotMerged(t *testing.T) {
	s, _, mem := newSaver(t)
	post := entity.New("Post").Set("tags", []*entity.Entity{
		entity.New("Tag").Set("name", "x"),
		entity.New("Tag").Set("name", "x"),
	})

	if _, err := s.Save(context.Background(), post); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if mem.Count("Tag") != 2 {
		t.Errorf("Count(Tag) = %d, want 2", mem.Count("Tag"))
	}
}

func TestSave_DiamondSavesSharedChildOnce(t *testing.T) {
	s, _, mem := newSaver(t)
	shared := entity.New("Image")
	a := entity.New("User").Set("avatar", shared)
	b := entity.New("Group").Set("logo", shared)
	root := entity.New("Post").Set("author", a).Set("group", b)

	res, err := s.Save(context.Background(), root)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if mem.Count("Image") != 1 {
		t.Errorf("Count(Image) = %d, want 1", mem.Count("Image"))
	}
	if len(res.Refs) != 4 || res.Rounds != 2 {
		t.Errorf("Refs=%d Rounds=%d, want 4/2", len(res.Refs), res.Rounds)
	}
}

func TestSave_EncodingFailureSendsNothing(t *testing.T) {
	child := entity.New("User")
	copied := *child

	tests := []struct {
		name string
		root func() *entity.Entity
	}{
		{"unsupported root field", func() *entity.Entity {
			return entity.New("Post").Set("ch", make(chan int))
		}},
		{"unsupported child field", func() *entity.Entity {
			return entity.New("Post").Set("author", entity.New("User").Set("fn", func() {}))
		}},
		{"entity inside plain array", func() *entity.Entity {
			return entity.New("Post").Set("mixed", []any{"x", entity.New("Tag")})
		}},
		{"zero value entity", func() *entity.Entity {
			return entity.New("Post").Set("author", &entity.Entity{Class: "User"})
		}},
		{"copied entity", func() *entity.Entity {
			return entity.New("Post").Set("a", child).Set("b", &copied)
		}},
		{"nil root", func() *entity.Entity { return nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, rec, _ := newSaver(t)

			_, err := s.Save(context.Background(), tt.root())
			if !errors.Is(err, ErrEncoding) {
				t.Fatalf("Save() = %v, want ErrEncoding", err)
			}
			if rec.Count() != 0 {
				t.Errorf("transport called %d times, want 0", rec.Count())
			}
			if deerrors.GetCode(err) != deerrors.ErrCodeEncodingFailure {
				t.Errorf("GetCode() = %q", deerrors.GetCode(err))
			}
		})
	}
}

func TestSave_ReadOnlyFieldOmitted(t *testing.T) {
	s, rec, _ := newSaver(t)
	post := entity.New("Post").Set("title", "x").Set("views", 10).SetReadOnly("views")

	if _, err := s.Save(context.Background(), post); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	body := rec.Calls()[0].Requests[0].Body
	if _, ok := body["views"]; ok {
		t.Errorf("read-only field sent: %v", body)
	}
}

func TestSave_ExistingRootIsUpdated(t *testing.T) {
	s, _, mem := newSaver(t)
	ctx := context.Background()

	rec, err := mem.Create(ctx, "Post", store.Document{"title": "old"})
	if err != nil {
		t.Fatal(err)
	}
	post := entity.Existing("Post", rec.ID).
		Set("title", "new").
		Set("author", entity.New("User"))

	res, err := s.Save(ctx, post)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if res.Root.ID != rec.ID {
		t.Errorf("Root = %v, want id %s", res.Root, rec.ID)
	}
	if mem.Count("Post") != 1 {
		t.Errorf("Count(Post) = %d, want 1", mem.Count("Post"))
	}
	got, _ := mem.Get(ctx, "Post", rec.ID)
	if got.Data["title"] != "new" {
		t.Errorf("title = %v, want new", got.Data["title"])
	}
}

func TestSave_BatchLimitSplitsGroups(t *testing.T) {
	mem := memory.New()
	rec := transport.NewRecorder(transport.Direct(mem))
	s := New(rec, Options{BatchLimit: 2})

	tags := make([]*entity.Entity, 5)
	for i := range tags {
		tags[i] = entity.New("Tag")
	}
	res, err := s.Save(context.Background(), entity.New("Post").Set("tags", tags))
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	var sizes []int
	for _, c := range rec.Calls() {
		if c.Many {
			sizes = append(sizes, len(c.Requests))
		}
	}
	if diff := cmp.Diff([]int{2, 2, 1}, sizes); diff != "" {
		t.Errorf("batch sizes mismatch (-want +got):\n%s", diff)
	}
	if res.Rounds != 1 || res.Requests != 4 {
		t.Errorf("Rounds=%d Requests=%d, want 1/4", res.Rounds, res.Requests)
	}
}

func TestSave_DoesNotMutateEntities(t *testing.T) {
	s, _, _ := newSaver(t)
	user := entity.New("User")
	post := entity.New("Post").Set("author", user)

	res, err := s.Save(context.Background(), post)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if !post.IsNew() || !user.IsNew() {
		t.Fatal("Save() assigned IDs on the caller's entities")
	}
	if n := entity.Apply(post, res.Refs); n != 2 {
		t.Errorf("Apply() = %d, want 2", n)
	}
	if post.ID != res.Root.ID {
		t.Errorf("post.ID = %q, want %q", post.ID, res.Root.ID)
	}
}

// =============================================================================
// Transport failures
// =============================================================================

type failingTransport struct {
	transport.Transport
	failMany bool
	failOne  bool
	short    bool
}

var errBoom = errors.New("boom")

func (f *failingTransport) SaveMany(ctx context.Context, class string, reqs []transport.Request) ([]transport.Result, error) {
	if f.failMany {
		return nil, errBoom
	}
	if f.short {
		return nil, nil
	}
	return f.Transport.SaveMany(ctx, class, reqs)
}

func (f *failingTransport) SaveOne(ctx context.Context, req transport.Request) (entity.Reference, error) {
	if f.failOne {
		return entity.Reference{}, errBoom
	}
	return f.Transport.SaveOne(ctx, req)
}

func TestSave_TransportFailure(t *testing.T) {
	tests := []struct {
		name     string
		tr       *failingTransport
		root     bool
		wantBoom bool
	}{
		{"batch", &failingTransport{failMany: true}, false, true},
		{"short batch", &failingTransport{short: true}, false, false},
		{"root commit", &failingTransport{failOne: true}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memory.New()
			tt.tr.Transport = transport.Direct(mem)
			s := New(tt.tr, Options{})

			post := entity.New("Post").Set("author", entity.New("User"))
			_, err := s.Save(context.Background(), post)
			if !errors.Is(err, ErrTransport) {
				t.Fatalf("Save() = %v, want ErrTransport", err)
			}
			var terr *TransportError
			if !errors.As(err, &terr) {
				t.Fatalf("error type = %T", err)
			}
			if terr.Root != tt.root {
				t.Errorf("Root = %v, want %v", terr.Root, tt.root)
			}
			if errors.Is(err, errBoom) != tt.wantBoom {
				t.Errorf("errors.Is(err, errBoom) = %v", !tt.wantBoom)
			}
			if tt.root && len(terr.Persisted) != 1 {
				t.Errorf("Persisted = %v, want the committed child", terr.Persisted)
			}
			if deerrors.GetCode(err) != deerrors.ErrCodeTransportFailure {
				t.Errorf("GetCode() = %q", deerrors.GetCode(err))
			}
		})
	}
}

// replyTransport reports success for every save with a fixed reference
// and writes nothing.
type replyTransport struct {
	many  entity.Reference
	one   entity.Reference
	calls int
}

func (r *replyTransport) SaveMany(_ context.Context, _ string, reqs []transport.Request) ([]transport.Result, error) {
	r.calls++
	out := make([]transport.Result, len(reqs))
	for i := range out {
		out[i] = transport.Result{Ref: r.many}
	}
	return out, nil
}

func (r *replyTransport) SaveOne(context.Context, transport.Request) (entity.Reference, error) {
	r.calls++
	return r.one, nil
}

func TestSave_InvalidChildReference(t *testing.T) {
	tests := []struct {
		name string
		ref  entity.Reference
	}{
		{"blank", entity.Reference{}},
		{"class only", entity.Reference{Class: "User"}},
		{"wrong class", entity.Reference{Class: "Comment", ID: "c1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &replyTransport{many: tt.ref, one: entity.Reference{Class: "Post", ID: "p1"}}
			author := entity.New("User")
			post := entity.New("Post").Set("author", author)

			_, err := New(tr, Options{}).Save(context.Background(), post)
			if errors.Is(err, ErrEncoding) {
				t.Fatalf("Save() = %v, should not be an encoding failure after a write", err)
			}
			var cerr *ChildSaveError
			if !errors.As(err, &cerr) {
				t.Fatalf("Save() = %v (%T), want *ChildSaveError", err, err)
			}
			if !errors.Is(err, ErrBadReference) {
				t.Errorf("errors.Is(err, ErrBadReference) = false: %v", err)
			}
			if len(cerr.Failures) != 1 || cerr.Failures[0].LocalID != author.LocalID() {
				t.Errorf("Failures = %+v, want the author", cerr.Failures)
			}
			if diff := cmp.Diff([]entity.LocalID{post.LocalID()}, cerr.Failures[0].Parents); diff != "" {
				t.Errorf("Parents mismatch (-want +got):\n%s", diff)
			}
			if tr.calls != 1 {
				t.Errorf("transport calls = %d, want 1 (root not committed)", tr.calls)
			}
		})
	}
}

func TestSave_InvalidRootReference(t *testing.T) {
	tests := []struct {
		name string
		ref  entity.Reference
	}{
		{"blank", entity.Reference{}},
		{"wrong class", entity.Reference{Class: "User", ID: "u1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &replyTransport{one: tt.ref}

			_, err := New(tr, Options{}).Save(context.Background(), entity.New("Post"))
			var terr *TransportError
			if !errors.As(err, &terr) {
				t.Fatalf("Save() = %v (%T), want *TransportError", err, err)
			}
			if !terr.Root || !errors.Is(err, ErrBadReference) {
				t.Errorf("Root = %v, err = %v", terr.Root, err)
			}
		})
	}
}

func TestSave_ReferenceClassDefaultsToRequested(t *testing.T) {
	tr := &replyTransport{many: entity.Reference{ID: "u1"}, one: entity.Reference{ID: "p1"}}
	author := entity.New("User")
	post := entity.New("Post").Set("author", author)

	res, err := New(tr, Options{}).Save(context.Background(), post)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	want := map[entity.LocalID]entity.Reference{
		author.LocalID(): {Class: "User", ID: "u1"},
		post.LocalID():   {Class: "Post", ID: "p1"},
	}
	if diff := cmp.Diff(want, res.Refs); diff != "" {
		t.Errorf("Refs mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_TransportSeesContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, _, _ := newSaver(t)
	_, err := s.Save(ctx, entity.New("Post"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Save() = %v, want context.Canceled", err)
	}
}

// =============================================================================
// Async & concurrency
// =============================================================================

func TestSaveAsync_FiresOnce(t *testing.T) {
	s, _, _ := newSaver(t)

	var (
		mu        sync.Mutex
		calls     int
		dispatches int
	)
	done := make(chan struct{})
	d := DispatcherFunc(func(fn func()) {
		mu.Lock()
		dispatches++
		mu.Unlock()
		fn()
	})

	post := entity.New("Post").Set("author", entity.New("User"))
	s.SaveAsync(context.Background(), post, d, func(res Result, err error) {
		mu.Lock()
		calls++
		mu.Unlock()
		if err != nil || len(res.Refs) != 2 {
			t.Errorf("callback got %v, %d refs", err, len(res.Refs))
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
	}
	// Give a stray second invocation a chance to show up.
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 || dispatches != 1 {
		t.Errorf("callback fired %d times via %d dispatches, want 1/1", calls, dispatches)
	}
}

func TestSaveAsync_FailureNilDispatcher(t *testing.T) {
	s, _, _ := newSaver(t)
	e := entity.New("Node")
	e.Set("self", e)

	errc := make(chan error, 2)
	s.SaveAsync(context.Background(), e, nil, func(_ Result, err error) { errc <- err })

	select {
	case err := <-errc:
		if !errors.Is(err, ErrCircularDependency) {
			t.Errorf("callback err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestSave_ConcurrentCallsAreIndependent(t *testing.T) {
	s, _, mem := newSaver(t)
	shared := entity.Existing("Tag", "shared")

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			child := entity.New("User")
			post := entity.New("Post").
				Set("author", child).
				Set("tags", []*entity.Entity{shared, entity.New("Tag")})
			res, err := s.Save(context.Background(), post)
			if err != nil {
				errs <- err
				return
			}
			if len(res.Refs) != 3 {
				errs <- errors.New("wrong number of refs")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if mem.Count("Post") != n || mem.Count("User") != n || mem.Count("Tag") != n {
		t.Errorf("counts = %d/%d/%d, want %d each",
			mem.Count("Post"), mem.Count("User"), mem.Count("Tag"), n)
	}
}
