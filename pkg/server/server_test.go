package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matzehuels/deepsave/pkg/deepsave"
	"github.com/matzehuels/deepsave/pkg/entity"
	deerrors "github.com/matzehuels/deepsave/pkg/errors"
	"github.com/matzehuels/deepsave/pkg/store"
	"github.com/matzehuels/deepsave/pkg/store/memory"
	"github.com/matzehuels/deepsave/pkg/transport/rest"
)

func newTestServer(t *testing.T, st store.Store, cfg Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(st, cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, header map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, url, &buf)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestCreateGetUpdate(t *testing.T) {
	srv := newTestServer(t, memory.New(), Config{MountPath: "/parse"})
	base := srv.URL + "/parse/classes/Post"

	resp, created := doJSON(t, http.MethodPost, base, map[string]any{"title": "hi"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	id, _ := created["objectId"].(string)
	if id == "" || created["createdAt"] == nil {
		t.Fatalf("create body = %v", created)
	}
	if loc := resp.Header.Get("Location"); !strings.HasSuffix(loc, "/classes/Post/"+id) {
		t.Errorf("Location = %q", loc)
	}

	resp, obj := doJSON(t, http.MethodGet, base+"/"+id, nil, nil)
	if resp.StatusCode != http.StatusOK || obj["title"] != "hi" || obj["objectId"] != id {
		t.Errorf("get = %d %v", resp.StatusCode, obj)
	}

	resp, updated := doJSON(t, http.MethodPut, base+"/"+id, map[string]any{"title": "bye"}, nil)
	if resp.StatusCode != http.StatusOK || updated["updatedAt"] == nil {
		t.Errorf("update = %d %v", resp.StatusCode, updated)
	}
	_, obj = doJSON(t, http.MethodGet, base+"/"+id, nil, nil)
	if obj["title"] != "bye" {
		t.Errorf("title after update = %v", obj["title"])
	}
}

func TestErrors(t *testing.T) {
	srv := newTestServer(t, memory.New(), Config{})

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   float64
	}{
		{"missing object", http.MethodGet, "/classes/Post/nope", nil, 404, rest.CodeObjectNotFound},
		{"update missing", http.MethodPut, "/classes/Post/nope", map[string]any{}, 404, rest.CodeObjectNotFound},
		{"bad class", http.MethodPost, "/classes/_User", map[string]any{}, 400, rest.CodeInvalidClassName},
		{"bad field", http.MethodPost, "/classes/Post", map[string]any{"$x": 1}, 400, rest.CodeInvalidKeyName},
		{"bad json", http.MethodPost, "/classes/Post", "not an object", 400, rest.CodeInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, tt.method, srv.URL+tt.path, tt.body, nil)
			if resp.StatusCode != tt.wantStatus || body["code"] != tt.wantCode {
				t.Errorf("got %d %v, want %d code %v", resp.StatusCode, body, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestAppID(t *testing.T) {
	srv := newTestServer(t, memory.New(), Config{AppID: "app"})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/classes/Post", map[string]any{}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without app id: status %d, want 401", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/classes/Post", map[string]any{}, map[string]string{rest.HeaderAppID: "app"})
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("with app id: status %d, want 201", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: status %d, want 200", resp.StatusCode)
	}
}

func TestBatch(t *testing.T) {
	st := memory.New(memory.WithReject(func(class string, doc store.Document) error {
		if doc["bad"] == true {
			return deerrors.New(deerrors.ErrCodeInvalidInput, "rejected")
		}
		return nil
	}))
	existing, err := st.Create(context.Background(), "Tag", store.Document{"n": 0})
	if err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, st, Config{MountPath: "/parse"})

	req := rest.BatchRequest{Requests: []rest.BatchOp{
		{Method: "POST", Path: "/parse/classes/Tag", Body: map[string]any{"n": 1}},
		{Method: "POST", Path: "/parse/classes/Tag", Body: map[string]any{"bad": true}},
		{Method: "PUT", Path: "/parse/classes/Tag/" + existing.ID, Body: map[string]any{"n": 2}},
		{Method: "DELETE", Path: "/parse/classes/Tag/x"},
		{Method: "POST", Path: "/parse/classes/User", Body: map[string]any{"name": "a"}},
	}}
	body, _ := json.Marshal(req)
	resp, err := http.Post(srv.URL+"/parse/batch", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var items []rest.BatchItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatal(err)
	}
	if len(items) != len(req.Requests) {
		t.Fatalf("got %d items, want %d", len(items), len(req.Requests))
	}

	for i, wantOK := range []bool{true, false, true, false, true} {
		if ok := items[i].Success != nil; ok != wantOK {
			t.Errorf("item %d success = %v, want %v (%+v)", i, ok, wantOK, items[i])
		}
	}
	if items[1].Error.Code != rest.CodeIncorrectType {
		t.Errorf("item 1 code = %d, want %d", items[1].Error.Code, rest.CodeIncorrectType)
	}
	if items[2].Success.ObjectID != existing.ID {
		t.Errorf("item 2 id = %q, want %q", items[2].Success.ObjectID, existing.ID)
	}
	if n := st.Count("Tag"); n != 2 {
		t.Errorf("Tag count = %d, want 2", n)
	}
}

func TestBatch_TooLarge(t *testing.T) {
	srv := newTestServer(t, memory.New(), Config{MaxBatch: 2})

	ops := make([]rest.BatchOp, 3)
	for i := range ops {
		ops[i] = rest.BatchOp{Method: "POST", Path: "/classes/Tag", Body: map[string]any{}}
	}
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/batch", rest.BatchRequest{Requests: ops}, nil)
	if resp.StatusCode != http.StatusBadRequest || body["code"] != float64(rest.CodeInvalidJSON) {
		t.Errorf("got %d %v, want 400 code 107", resp.StatusCode, body)
	}
}

// TestDeepSaveOverHTTP runs the save engine through the REST client
// against the server and checks what landed in the store.
func TestDeepSaveOverHTTP(t *testing.T) {
	st := memory.New()
	srv := newTestServer(t, st, Config{MountPath: "/parse", AppID: "app"})

	client, err := rest.New(rest.Config{BaseURL: srv.URL + "/parse", AppID: "app"})
	if err != nil {
		t.Fatal(err)
	}

	tags := make([]*entity.Entity, 3)
	for i := range tags {
		tags[i] = entity.New("Tag").Set("name", fmt.Sprintf("t%d", i))
	}
	author := entity.New("User").Set("name", "Alice")
	post := entity.New("Post").
		Set("title", "Hello").
		Set("author", author).
		Set("tags", tags)

	res, err := deepsave.New(client, deepsave.Options{}).Save(context.Background(), post)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if len(res.Refs) != 5 {
		t.Errorf("got %d refs, want 5", len(res.Refs))
	}

	rec, err := st.Get(context.Background(), "Post", res.Root.ID)
	if err != nil {
		t.Fatalf("Get(post) error: %v", err)
	}
	ptr, _ := rec.Data["author"].(map[string]any)
	authorRef, _ := res.Ref(author)
	if ptr["__type"] != "Pointer" || ptr["className"] != "User" || ptr["objectId"] != authorRef.ID {
		t.Errorf("author field = %v, want pointer to %v", rec.Data["author"], authorRef)
	}
	if arr, _ := rec.Data["tags"].([]any); len(arr) != 3 {
		t.Errorf("tags field = %v, want 3 pointers", rec.Data["tags"])
	}

	obj, err := client.Fetch(context.Background(), res.Root)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if obj["author"] != authorRef {
		t.Errorf("fetched author = %#v, want %v", obj["author"], authorRef)
	}
}

func TestDeepSaveOverHTTP_ItemFailure(t *testing.T) {
	st := memory.New(memory.WithReject(func(class string, doc store.Document) error {
		if doc["name"] == "bad" {
			return errors.New("nope")
		}
		return nil
	}))
	srv := newTestServer(t, st, Config{})
	client, _ := rest.New(rest.Config{BaseURL: srv.URL})

	post := entity.New("Post").Set("tags", []*entity.Entity{
		entity.New("Tag").Set("name", "ok"),
		entity.New("Tag").Set("name", "bad"),
	})
	_, err := deepsave.New(client, deepsave.Options{}).Save(context.Background(), post)

	var cse *deepsave.ChildSaveError
	if !errors.As(err, &cse) || len(cse.Failures) != 1 {
		t.Fatalf("err = %v, want ChildSaveError with 1 failure", err)
	}
	if st.Count("Post") != 0 {
		t.Error("root was saved despite a child failure")
	}
}
